package security

import (
	"crypto/x509"
	"encoding/pem"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedCA(t *testing.T) {
	cert, key, err := GenerateSelfSignedCA("cephadm-root")
	require.NoError(t, err)
	require.NotNil(t, key)

	assert.True(t, cert.IsCA, "root certificate should be a CA")
	assert.Equal(t, "cephadm-root", cert.Subject.CommonName)
	assert.NotZero(t, cert.KeyUsage&x509.KeyUsageCertSign)
}

func TestIssueLeafCert(t *testing.T) {
	caCert, caKey, err := GenerateSelfSignedCA("cephadm-root")
	require.NoError(t, err)

	leaf, err := IssueLeafCert(caCert, caKey, "host1", []net.IP{net.ParseIP("10.0.0.1")})
	require.NoError(t, err)

	block, _ := pem.Decode(leaf.CertPEM)
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE", block.Type)

	parsed, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.False(t, parsed.IsCA)
	assert.Contains(t, parsed.DNSNames, "host1")
	require.Len(t, parsed.IPAddresses, 1)
	assert.True(t, parsed.IPAddresses[0].Equal(net.ParseIP("10.0.0.1")))

	// leaf verifies against the root
	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	_, err = parsed.Verify(x509.VerifyOptions{Roots: pool})
	assert.NoError(t, err)

	keyBlock, _ := pem.Decode(leaf.KeyPEM)
	require.NotNil(t, keyBlock)
	assert.Equal(t, "RSA PRIVATE KEY", keyBlock.Type)
}

func TestGenerateRandomPassword(t *testing.T) {
	a, err := GenerateRandomPassword(16)
	require.NoError(t, err)
	b, err := GenerateRandomPassword(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 16)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", h)
	assert.Contains(t, h, "$2a$")
}
