package crypto

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/allisson/vaultd/internal/errors"
)

// MasterKey holds the single symmetric key that encrypts every stored
// secret's value. It lives once in process memory for the server's lifetime
// and is the single point of compromise for the whole vault: it is never
// logged, never returned by any API, and zeroized on Close.
type MasterKey struct {
	key []byte
}

// Bytes returns the raw 32-byte key material. Callers must not retain or
// copy the slice beyond a single encrypt/decrypt call.
func (m *MasterKey) Bytes() []byte {
	return m.key
}

// Close zeroizes the key material in memory.
func (m *MasterKey) Close() {
	Zero(m.key)
	m.key = nil
}

// LoadOrCreateMasterKey loads the master key from path, or generates a new
// 32-byte key and persists it with owner-only permissions on first boot.
// Parent directories are created as needed.
func LoadOrCreateMasterKey(path string) (*MasterKey, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if decErr != nil {
			return nil, apperrors.Wrap(apperrors.ErrCrypto, "master key file is not valid base64")
		}
		if len(key) != KeySize {
			Zero(key)
			return nil, apperrors.Wrap(
				apperrors.ErrCrypto,
				fmt.Sprintf("master key must be %d bytes, got %d", KeySize, len(key)),
			)
		}
		return &MasterKey{key: key}, nil
	}
	if !os.IsNotExist(err) {
		return nil, apperrors.Wrap(apperrors.ErrStorage, err.Error())
	}

	// First boot: generate and persist a fresh key.
	key, err := GenerateKeyBytes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCrypto, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		Zero(key)
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create master key directory: "+err.Error())
	}

	encoded := base64.StdEncoding.EncodeToString(key) + "\n"
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		Zero(key)
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to write master key file: "+err.Error())
	}

	return &MasterKey{key: key}, nil
}
