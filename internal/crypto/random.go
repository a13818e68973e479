package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Alphanumeric only: generated values end up in shell environments and JSON
// documents downstream, so punctuation is deliberately excluded.
const alphanumericChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// KeySize is the size in bytes of master keys and generated symmetric keys.
const KeySize = 32

// GenerateKeyBytes returns 32 cryptographically secure random bytes,
// suitable for master keys and generated symmetric secrets.
func GenerateKeyBytes() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key bytes: %w", err)
	}
	return key, nil
}

// GeneratePassword creates a cryptographically secure random alphanumeric
// string of the requested length. Returns an error if length is less than 1
// or greater than 255.
func GeneratePassword(length int) (string, error) {
	if length < 1 {
		return "", errors.New("length must be at least 1")
	}
	if length > 255 {
		return "", errors.New("length must not exceed 255")
	}

	password := make([]byte, length)
	charsLen := big.NewInt(int64(len(alphanumericChars)))

	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, charsLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random character: %w", err)
		}
		password[i] = alphanumericChars[n.Int64()]
	}

	return string(password), nil
}

// Zero securely overwrites a byte slice with zeros to clear sensitive data from memory.
func Zero(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
