// Package crypto provides the cryptographic primitives for the vault:
// AEAD encryption of secrets at rest, secure random generation, Ed25519
// signing for audit-log integrity, and secret-value generators by category.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	apperrors "github.com/allisson/vaultd/internal/errors"
)

// Algorithm identifies an AEAD cipher for secrets at rest.
type Algorithm string

const (
	// ChaCha20Poly1305 is the default cipher; efficient without AES hardware acceleration.
	ChaCha20Poly1305 Algorithm = "chacha20-poly1305"

	// AESGCM is AES-256-GCM; preferred on CPUs with AES-NI.
	AESGCM Algorithm = "aes-gcm"
)

// ParseAlgorithm maps a configuration string to an Algorithm.
// Unknown values fall back to ChaCha20Poly1305.
func ParseAlgorithm(s string) Algorithm {
	switch Algorithm(s) {
	case AESGCM:
		return AESGCM
	default:
		return ChaCha20Poly1305
	}
}

// Cipher defines the interface for Authenticated Encryption with Associated Data.
type Cipher interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// NewCipher creates an AEAD cipher instance for the specified algorithm.
// The key must be exactly 32 bytes (256 bits).
func NewCipher(key []byte, alg Algorithm) (Cipher, error) {
	switch alg {
	case AESGCM:
		return newAESGCM(key)
	case ChaCha20Poly1305:
		return newChaCha20Poly1305(key)
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}
}

// chaCha20Poly1305Cipher implements Cipher using ChaCha20-Poly1305.
type chaCha20Poly1305Cipher struct {
	aead cipher.AEAD
}

func newChaCha20Poly1305(key []byte) (*chaCha20Poly1305Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &chaCha20Poly1305Cipher{aead: aead}, nil
}

// Encrypt encrypts plaintext using ChaCha20-Poly1305.
// A unique 12-byte nonce is randomly generated for each call; it must never
// be reused under the same key, which random generation satisfies for the
// vault's write volume.
func (c *chaCha20Poly1305Cipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = c.aead.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// Decrypt decrypts ciphertext using ChaCha20-Poly1305 with the provided nonce and AAD.
// The Poly1305 tag is verified before any plaintext is returned.
func (c *chaCha20Poly1305Cipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// aesGCMCipher implements Cipher using AES-256-GCM.
type aesGCMCipher struct {
	aead cipher.AEAD
}

func newAESGCM(key []byte) (*aesGCMCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be exactly 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCMCipher{aead: aead}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM with a fresh random 12-byte nonce.
func (a *aesGCMCipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = a.aead.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM with the provided nonce and AAD.
func (a *aesGCMCipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptToBlob encrypts plaintext and encodes the result as
// "base64(nonce):base64(ciphertext)", the textual form stored in the vault file.
func EncryptToBlob(c Cipher, plaintext []byte) (string, error) {
	ciphertext, nonce, err := c.Encrypt(plaintext, nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCrypto, err.Error())
	}

	return base64.StdEncoding.EncodeToString(nonce) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptBlob decodes and decrypts a "base64(nonce):base64(ciphertext)" blob.
//
// All failure modes (malformed blob, wrong nonce length, authentication
// failure from a wrong key or tampered ciphertext) are indistinguishable to
// the caller: each returns ErrCrypto with no further detail, so the vault
// never acts as a decryption oracle.
func DecryptBlob(c Cipher, blob string) ([]byte, error) {
	parts := strings.SplitN(blob, ":", 2)
	if len(parts) != 2 {
		return nil, apperrors.ErrCrypto
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, apperrors.ErrCrypto
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, apperrors.ErrCrypto
	}

	plaintext, err := c.Decrypt(ciphertext, nonce, nil)
	if err != nil {
		return nil, apperrors.ErrCrypto
	}

	return plaintext, nil
}
