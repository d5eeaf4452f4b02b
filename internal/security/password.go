package security

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"

	"github.com/cephadm/cephadm/internal/agenterr"
)

// GenerateRandomPassword returns a URL-safe random password suitable
// for the dashboard's initial admin account.
func GenerateRandomPassword(n int) (string, error) {
	if n <= 0 {
		n = 16
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "security.GenerateRandomPassword", "", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashPassword bcrypt-hashes password. Bootstrap does not call it: the
// dashboard's initial admin password is handed to the dashboard module
// in plaintext.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "security.HashPassword", "", err)
	}
	return string(h), nil
}
