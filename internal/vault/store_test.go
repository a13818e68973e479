package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/vaultd/internal/crypto"
	apperrors "github.com/allisson/vaultd/internal/errors"
)

func newTestStore(t *testing.T) (*Store, string, crypto.Cipher) {
	t.Helper()

	key, err := crypto.GenerateKeyBytes()
	require.NoError(t, err)

	cipher, err := crypto.NewCipher(key, crypto.ChaCha20Poly1305)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vault.json")
	store, err := LoadOrInit(path, cipher, crypto.ChaCha20Poly1305, 90, 14)
	require.NoError(t, err)

	return store, path, cipher
}

func TestLoadOrInit(t *testing.T) {
	t.Run("creates vault file when absent", func(t *testing.T) {
		store, path, _ := newTestStore(t)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		assert.Equal(t, 90, store.RotationDays())
		assert.Equal(t, 14, store.GraceDays())
	})

	t.Run("creates parent directories", func(t *testing.T) {
		key, err := crypto.GenerateKeyBytes()
		require.NoError(t, err)
		cipher, err := crypto.NewCipher(key, crypto.ChaCha20Poly1305)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "nested", "dir", "vault.json")
		_, err = LoadOrInit(path, cipher, crypto.ChaCha20Poly1305, 90, 14)
		require.NoError(t, err)

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("treats an empty file as first boot", func(t *testing.T) {
		key, err := crypto.GenerateKeyBytes()
		require.NoError(t, err)
		cipher, err := crypto.NewCipher(key, crypto.ChaCha20Poly1305)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "vault.json")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		store, err := LoadOrInit(path, cipher, crypto.ChaCha20Poly1305, 30, 7)
		require.NoError(t, err)
		assert.Equal(t, 30, store.RotationDays())
	})

	t.Run("rejects an unparsable file", func(t *testing.T) {
		key, err := crypto.GenerateKeyBytes()
		require.NoError(t, err)
		cipher, err := crypto.NewCipher(key, crypto.ChaCha20Poly1305)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "vault.json")
		require.NoError(t, os.WriteFile(path, []byte("{invalid"), 0o600))

		_, err = LoadOrInit(path, cipher, crypto.ChaCha20Poly1305, 90, 14)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrStorage))
	})
}

func TestStoreSetAndGetSecret(t *testing.T) {
	store, path, _ := newTestStore(t)

	plaintext := []byte("p@ssw0rd-value")
	require.NoError(t, store.SetSecret("db_password", plaintext, nil))

	value, meta, err := store.GetSecret("db_password")
	require.NoError(t, err)
	defer crypto.Zero(value)

	assert.Equal(t, plaintext, value)
	assert.Equal(t, string(crypto.ChaCha20Poly1305), meta.Algorithm)
	assert.NotEmpty(t, meta.Kid)
	require.NotNil(t, meta.ExpiresAt)
	assert.Equal(t, meta.CreatedAt.AddDate(0, 0, 90), *meta.ExpiresAt)
	assert.Empty(t, meta.Prev)

	// Plaintext must never appear in the persisted file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "p@ssw0rd-value")
}

func TestStoreGetSecretNotFound(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, _, err := store.GetSecret("missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestStoreDeleteSecret(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.SetSecret("api_key", []byte("value"), nil))
	require.NoError(t, store.DeleteSecret("api_key"))

	_, _, err := store.GetSecret("api_key")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	err = store.DeleteSecret("api_key")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestStoreGenerateAndStore(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.GenerateAndStore("service_api_key", crypto.TypeAPIKey))

	value, _, err := store.GetSecret("service_api_key")
	require.NoError(t, err)
	defer crypto.Zero(value)
	assert.Len(t, value, 32)
}

func TestStoreRotateSecret(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.GenerateAndStore("db_password", crypto.TypeDatabasePassword))

	oldValue, oldMeta, err := store.GetSecret("db_password")
	require.NoError(t, err)

	require.NoError(t, store.RotateSecret("db_password", crypto.TypeDatabasePassword))

	newValue, newMeta, err := store.GetSecret("db_password")
	require.NoError(t, err)

	assert.NotEqual(t, oldValue, newValue)
	assert.NotEqual(t, oldMeta.Kid, newMeta.Kid)
	assert.Equal(t, []string{oldMeta.Kid}, newMeta.Prev)

	t.Run("rotating a missing secret fails", func(t *testing.T) {
		err := store.RotateSecret("missing", crypto.TypeAPIKey)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})
}

func TestStoreListSecrets(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.SetSecret("zebra", []byte("z"), nil))
	require.NoError(t, store.SetSecret("alpha", []byte("a"), nil))
	require.NoError(t, store.SetSecret("mango", []byte("m"), nil))

	infos := store.ListSecrets()
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "mango", infos[1].Name)
	assert.Equal(t, "zebra", infos[2].Name)
}

func TestStoreStats(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.SetSecret("one", []byte("1"), nil))
	require.NoError(t, store.SetSecret("two", []byte("2"), nil))

	stats := store.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.ExpiredCount)
	assert.Equal(t, 90, stats.RotationDays)
	assert.Equal(t, 14, stats.GraceDays)
}

func TestStorePersistenceAcrossReload(t *testing.T) {
	key, err := crypto.GenerateKeyBytes()
	require.NoError(t, err)
	cipher, err := crypto.NewCipher(key, crypto.ChaCha20Poly1305)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vault.json")

	store, err := LoadOrInit(path, cipher, crypto.ChaCha20Poly1305, 90, 14)
	require.NoError(t, err)
	require.NoError(t, store.SetSecret("db_password", []byte("persisted"), nil))

	reloaded, err := LoadOrInit(path, cipher, crypto.ChaCha20Poly1305, 90, 14)
	require.NoError(t, err)

	value, _, err := reloaded.GetSecret("db_password")
	require.NoError(t, err)
	defer crypto.Zero(value)
	assert.Equal(t, []byte("persisted"), value)
}

func TestStoreWrongMasterKey(t *testing.T) {
	key1, err := crypto.GenerateKeyBytes()
	require.NoError(t, err)
	cipher1, err := crypto.NewCipher(key1, crypto.ChaCha20Poly1305)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vault.json")

	store, err := LoadOrInit(path, cipher1, crypto.ChaCha20Poly1305, 90, 14)
	require.NoError(t, err)
	require.NoError(t, store.SetSecret("db_password", []byte("value"), nil))

	key2, err := crypto.GenerateKeyBytes()
	require.NoError(t, err)
	cipher2, err := crypto.NewCipher(key2, crypto.ChaCha20Poly1305)
	require.NoError(t, err)

	reloaded, err := LoadOrInit(path, cipher2, crypto.ChaCha20Poly1305, 90, 14)
	require.NoError(t, err)

	_, _, err = reloaded.GetSecret("db_password")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCrypto))
}

func TestStoreGetMeta(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.SetSecret("db_password", []byte("value"), nil))

	t.Run("returns metadata without the value", func(t *testing.T) {
		meta, err := store.GetMeta("db_password")
		require.NoError(t, err)

		_, fullMeta, err := store.GetSecret("db_password")
		require.NoError(t, err)
		assert.Equal(t, fullMeta, meta)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := store.GetMeta("missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestStoreConcurrentWrites(t *testing.T) {
	store, path, cipher := newTestStore(t)

	const writers = 8
	const rounds = 10

	for round := 0; round < rounds; round++ {
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				name := fmt.Sprintf("secret_%d", i)
				errs[i] = store.SetSecret(name, []byte("round-value"), nil)
			}()
		}
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "writer %d round %d", i, round)
		}
	}

	// The on-disk file must hold the newest snapshot with every secret.
	reloaded, err := LoadOrInit(path, cipher, crypto.ChaCha20Poly1305, 90, 14)
	require.NoError(t, err)
	for i := 0; i < writers; i++ {
		_, _, err := reloaded.GetSecret(fmt.Sprintf("secret_%d", i))
		assert.NoError(t, err)
	}

	// No temp files are left behind by the persist path.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp", "leftover temp file %s", entry.Name())
	}
}
