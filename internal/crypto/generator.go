package crypto

import (
	"encoding/base64"
	"fmt"
)

// SecretType is a semantic category for generated secret values.
type SecretType string

const (
	// TypeSigningKey generates an Ed25519 signing keypair.
	TypeSigningKey SecretType = "signing_key"

	// TypeDatabasePassword generates a 64-character alphanumeric password.
	TypeDatabasePassword SecretType = "database_password"

	// TypeEncryptionKey generates a base64-encoded 256-bit symmetric key.
	TypeEncryptionKey SecretType = "encryption_key"

	// TypeAPIKey generates a 32-character alphanumeric key. Also the
	// fallback for unknown categories.
	TypeAPIKey SecretType = "api_key"
)

// ParseSecretType maps a string to a SecretType, falling back to TypeAPIKey
// for unknown categories.
func ParseSecretType(s string) SecretType {
	switch SecretType(s) {
	case TypeSigningKey, TypeDatabasePassword, TypeEncryptionKey, TypeAPIKey:
		return SecretType(s)
	default:
		return TypeAPIKey
	}
}

// GenerateSecretValue produces a fresh secret value appropriate for the
// given semantic category.
func GenerateSecretValue(secretType SecretType) (string, error) {
	switch secretType {
	case TypeSigningKey:
		// The private key encodes the full pair (seed + public key).
		_, priv, err := GenerateSigningKeypair()
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(priv), nil

	case TypeDatabasePassword:
		return GeneratePassword(64)

	case TypeEncryptionKey:
		key, err := GenerateKeyBytes()
		if err != nil {
			return "", fmt.Errorf("failed to generate encryption key: %w", err)
		}
		defer Zero(key)
		return base64.StdEncoding.EncodeToString(key), nil

	default:
		return GeneratePassword(32)
	}
}
