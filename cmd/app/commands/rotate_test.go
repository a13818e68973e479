package commands

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/vaultd/internal/audit"
	"github.com/allisson/vaultd/internal/crypto"
	"github.com/allisson/vaultd/internal/rotation"
	"github.com/allisson/vaultd/internal/vault"
)

func newRotateFixture(t *testing.T) (*rotation.Engine, *vault.Store) {
	t.Helper()

	key, err := crypto.GenerateKeyBytes()
	require.NoError(t, err)
	cipher, err := crypto.NewCipher(key, crypto.ChaCha20Poly1305)
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := vault.LoadOrInit(
		filepath.Join(dir, "vault.json"), cipher, crypto.ChaCha20Poly1305, 90, 14,
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog, err := audit.Init(filepath.Join(dir, "audit.log"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	return rotation.NewEngine(store, auditLog, logger), store
}

func TestRunRotate(t *testing.T) {
	t.Run("rotates named secrets", func(t *testing.T) {
		engine, store := newRotateFixture(t)
		require.NoError(t, store.GenerateAndStore("api_key", crypto.TypeAPIKey))

		var buf bytes.Buffer
		require.NoError(t, RunRotate(engine, &buf, []string{"api_key"}))
		assert.Contains(t, buf.String(), "Rotated 1 secret(s)")
		assert.Contains(t, buf.String(), "api_key")
	})

	t.Run("reports when nothing is due", func(t *testing.T) {
		engine, store := newRotateFixture(t)
		require.NoError(t, store.GenerateAndStore("fresh_key", crypto.TypeAPIKey))

		var buf bytes.Buffer
		require.NoError(t, RunRotate(engine, &buf, nil))
		assert.Contains(t, buf.String(), "No secrets rotated")
	})
}
