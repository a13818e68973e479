package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/allisson/vaultd/internal/crypto"
	apperrors "github.com/allisson/vaultd/internal/errors"
)

// Store is the in-memory vault plus its persistence. One Store instance
// exists per process, shared by the request layer and the rotation scheduler.
//
// Concurrency: the in-memory vault is guarded by a single reader/writer
// lock. Reads take the read lock; mutations take the write lock, serialize
// the vault while holding it, and release it before the disk write so disk
// I/O never extends lock hold time. Disk writes are serialized by persistMu,
// acquired before the vault lock is released, so snapshots reach the file in
// commit order and a stale snapshot can never be renamed over a newer one.
type Store struct {
	mu        sync.RWMutex
	persistMu sync.Mutex
	path      string
	cipher    crypto.Cipher
	alg       crypto.Algorithm
	vault     *Vault
}

// LoadOrInit opens the vault file at path, tolerating an empty file by
// initializing a fresh vault (first boot, not an error). If the file is
// absent, parent directories are created and a new vault is persisted.
func LoadOrInit(
	path string,
	cipher crypto.Cipher,
	alg crypto.Algorithm,
	rotationDays int,
	graceDays int,
) (*Store, error) {
	s := &Store{
		path:   path,
		cipher: cipher,
		alg:    alg,
	}

	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil && len(data) > 0:
		var v Vault
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to parse vault file: "+err.Error())
		}
		if v.Secrets == nil {
			v.Secrets = make(map[string]SecretRecord)
		}
		s.vault = &v
		return s, nil

	case err == nil:
		// Empty file: treat as first boot.
		s.vault = newVault(rotationDays, graceDays)
		return s, s.save()

	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create vault directory: "+err.Error())
		}
		s.vault = newVault(rotationDays, graceDays)
		return s, s.save()

	default:
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read vault file: "+err.Error())
	}
}

func newVault(rotationDays, graceDays int) *Vault {
	now := time.Now().UTC()
	return &Vault{
		Version:      SchemaVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
		RotationDays: rotationDays,
		GraceDays:    graceDays,
		Secrets:      make(map[string]SecretRecord),
	}
}

// SetSecret encrypts plaintext under the master key and stores it. When meta
// is nil, metadata is auto-generated: a timestamp-derived kid and an expiry
// of created_at + rotation_days. The vault timestamp is touched and the
// vault is persisted.
func (s *Store) SetSecret(name string, plaintext []byte, meta *SecretMeta) error {
	blob, err := crypto.EncryptToBlob(s.cipher, plaintext)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if meta == nil {
		expiresAt := now.AddDate(0, 0, s.RotationDays())
		meta = &SecretMeta{
			Algorithm: string(s.alg),
			Kid:       NewKid(now),
			CreatedAt: now,
			ExpiresAt: &expiresAt,
			Prev:      []string{},
		}
	}

	s.mu.Lock()
	s.vault.Secrets[name] = SecretRecord{Blob: blob, Meta: *meta}
	s.vault.UpdatedAt = now
	data, err := s.marshalLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.persistMu.Lock()
	s.mu.Unlock()
	defer s.persistMu.Unlock()

	return s.persist(data)
}

// GetSecret decrypts and returns the secret's value and metadata.
// Ownership of the plaintext passes to the caller, who must Zero it once the
// response has been written.
func (s *Store) GetSecret(name string) ([]byte, SecretMeta, error) {
	s.mu.RLock()
	record, ok := s.vault.Secrets[name]
	s.mu.RUnlock()

	if !ok {
		return nil, SecretMeta{}, apperrors.ErrNotFound
	}

	plaintext, err := crypto.DecryptBlob(s.cipher, record.Blob)
	if err != nil {
		return nil, SecretMeta{}, err
	}

	return plaintext, record.Meta, nil
}

// GetMeta returns the secret's metadata without decrypting its value, for
// callers that only need the kid, timestamps, or prev list.
func (s *Store) GetMeta(name string) (SecretMeta, error) {
	s.mu.RLock()
	record, ok := s.vault.Secrets[name]
	s.mu.RUnlock()

	if !ok {
		return SecretMeta{}, apperrors.ErrNotFound
	}

	return record.Meta, nil
}

// DeleteSecret removes the named secret and persists the vault.
func (s *Store) DeleteSecret(name string) error {
	s.mu.Lock()
	if _, ok := s.vault.Secrets[name]; !ok {
		s.mu.Unlock()
		return apperrors.ErrNotFound
	}
	delete(s.vault.Secrets, name)
	s.vault.UpdatedAt = time.Now().UTC()
	data, err := s.marshalLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.persistMu.Lock()
	s.mu.Unlock()
	defer s.persistMu.Unlock()

	return s.persist(data)
}

// GenerateAndStore generates a fresh value of the given semantic type and
// stores it under name with auto-generated metadata.
func (s *Store) GenerateAndStore(name string, secretType crypto.SecretType) error {
	value, err := crypto.GenerateSecretValue(secretType)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCrypto, err.Error())
	}

	plaintext := []byte(value)
	defer crypto.Zero(plaintext)

	return s.SetSecret(name, plaintext, nil)
}

// RotateSecret generates a fresh value of the same semantic type and
// overwrites the secret. The new metadata's prev list gains exactly the old
// kid; entries older than the grace period are aged out at the same time.
func (s *Store) RotateSecret(name string, secretType crypto.SecretType) error {
	s.mu.RLock()
	record, ok := s.vault.Secrets[name]
	s.mu.RUnlock()

	if !ok {
		return apperrors.ErrNotFound
	}
	oldMeta := record.Meta

	value, err := crypto.GenerateSecretValue(secretType)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCrypto, err.Error())
	}

	plaintext := []byte(value)
	defer crypto.Zero(plaintext)

	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, s.RotationDays())
	newMeta := &SecretMeta{
		Algorithm: string(s.alg),
		Kid:       NewKid(now),
		CreatedAt: now,
		ExpiresAt: &expiresAt,
		Prev:      append(PrunePrev(oldMeta.Prev, now, s.GraceDays()), oldMeta.Kid),
	}

	return s.SetSecret(name, plaintext, newMeta)
}

// ListSecrets returns name and metadata for every secret, sorted by name.
// Plaintext is never included.
func (s *Store) ListSecrets() []SecretInfo {
	s.mu.RLock()
	infos := make([]SecretInfo, 0, len(s.vault.Secrets))
	for name, record := range s.vault.Secrets {
		infos = append(infos, SecretInfo{Name: name, Meta: record.Meta})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Stats returns a summary of the vault state.
func (s *Store) Stats() Stats {
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	expired := 0
	for _, record := range s.vault.Secrets {
		if record.Meta.ExpiresAt != nil && !now.Before(*record.Meta.ExpiresAt) {
			expired++
		}
	}

	return Stats{
		Total:        len(s.vault.Secrets),
		ExpiredCount: expired,
		RotationDays: s.vault.RotationDays,
		GraceDays:    s.vault.GraceDays,
		CreatedAt:    s.vault.CreatedAt,
		UpdatedAt:    s.vault.UpdatedAt,
	}
}

// RotationDays returns the vault's default rotation period in days.
func (s *Store) RotationDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vault.RotationDays
}

// GraceDays returns the vault's grace period in days.
func (s *Store) GraceDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vault.GraceDays
}

// save serializes the vault under the read lock and writes it atomically.
func (s *Store) save() error {
	s.mu.RLock()
	data, err := s.marshalLocked()
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	s.persistMu.Lock()
	s.mu.RUnlock()
	defer s.persistMu.Unlock()

	return s.persist(data)
}

// marshalLocked serializes the vault. Callers must hold the lock.
func (s *Store) marshalLocked() ([]byte, error) {
	data, err := json.MarshalIndent(s.vault, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to serialize vault: "+err.Error())
	}
	return data, nil
}

// persist writes the serialized vault to a uniquely named temporary file in
// the vault's directory and renames it over the target, so a crash mid-write
// never corrupts the persisted vault. Callers must hold persistMu. The file
// mode is forced to owner-read/write-only after writing.
func (s *Store) persist(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to create temp vault file: "+err.Error())
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write temp vault file: "+err.Error())
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.ErrStorage, "failed to close temp vault file: "+err.Error())
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.ErrStorage, "failed to rename vault file: "+err.Error())
	}

	if err := os.Chmod(s.path, 0o600); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to set vault file mode: "+err.Error())
	}

	return nil
}
