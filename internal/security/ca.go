// Package security issues self-signed TLS material (an RSA root plus
// short-lived leaf certs), generates and bcrypt-hashes passwords, and
// resolves the uid/gid a daemon's files are owned by. No sub-command
// calls the certificate functions.
package security

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	"github.com/cephadm/cephadm/internal/agenterr"
)

const (
	rootCAValidity   = 10 * 365 * 24 * time.Hour
	leafCertValidity = 90 * 24 * time.Hour
	rootKeyBits      = 4096
	leafKeyBits      = 2048
)

// CertKeyPEM is a PEM-encoded certificate and its private key.
type CertKeyPEM struct {
	CertPEM []byte
	KeyPEM  []byte
}

// GenerateSelfSignedCA creates a root certificate authority for
// commonName, valid for rootCAValidity.
func GenerateSelfSignedCA(commonName string) (*x509.Certificate, *rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, rootKeyBits)
	if err != nil {
		return nil, nil, agenterr.Wrap(agenterr.KindExternalCommand, "security.GenerateSelfSignedCA", commonName, err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, agenterr.Wrap(agenterr.KindExternalCommand, "security.GenerateSelfSignedCA", commonName, err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(rootCAValidity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, agenterr.Wrap(agenterr.KindExternalCommand, "security.GenerateSelfSignedCA", commonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, agenterr.Wrap(agenterr.KindExternalCommand, "security.GenerateSelfSignedCA", commonName, err)
	}
	return cert, key, nil
}

// IssueLeafCert issues a short-lived leaf certificate for the given
// hostname/IPs, signed by caCert/caKey.
func IssueLeafCert(caCert *x509.Certificate, caKey *rsa.PrivateKey, hostname string, ips []net.IP) (CertKeyPEM, error) {
	key, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return CertKeyPEM{}, agenterr.Wrap(agenterr.KindExternalCommand, "security.IssueLeafCert", hostname, err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return CertKeyPEM{}, agenterr.Wrap(agenterr.KindExternalCommand, "security.IssueLeafCert", hostname, err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hostname},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(leafCertValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{hostname},
		IPAddresses:  ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		return CertKeyPEM{}, agenterr.Wrap(agenterr.KindExternalCommand, "security.IssueLeafCert", hostname, err)
	}
	return CertKeyPEM{
		CertPEM: pemEncode("CERTIFICATE", der),
		KeyPEM:  pemEncode("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)),
	}, nil
}

func pemEncode(blockType string, der []byte) []byte {
	var buf bytes.Buffer
	pem.Encode(&buf, &pem.Block{Type: blockType, Bytes: der})
	return buf.Bytes()
}
