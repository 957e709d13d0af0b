package utils

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

// DefaultTokenBytes gives 192 bits of entropy.
const DefaultTokenBytes = 24

var randRead = rand.Read

// NewToken returns a URL-safe random token of byteLen random bytes, suitable
// as a bearer credential.
func NewToken(byteLen int) (string, error) {
	if byteLen <= 0 {
		byteLen = DefaultTokenBytes
	}
	b := make([]byte, byteLen)
	if _, err := randRead(b); err != nil {
		return "", errors.Wrap(err, "generate token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
