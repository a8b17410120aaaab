package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	numericAlphabet      = "0123456789"
	alphanumericAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// RandomHex returns n random bytes encoded as hex.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret returns the SHA-256 hex digest of s. Refresh tokens, reset
// authorizations and verification codes are stored only in this form.
func HashSecret(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NewCode returns a random verification code of the given length drawn from
// the "numeric" or "alphanumeric" alphabet. The alphanumeric set drops
// look-alike characters.
func NewCode(length int, alphabet string) (string, error) {
	if length < 4 || length > 12 {
		return "", errors.New("invalid code length")
	}
	chars := numericAlphabet
	if alphabet == "alphanumeric" {
		chars = alphanumericAlphabet
	}

	var b strings.Builder
	b.Grow(length)
	limit := big.NewInt(int64(len(chars)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(chars[n.Int64()])
	}
	return b.String(), nil
}
