package audit

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audit.log")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditLog, err := Init(path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	return auditLog, path
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())

	return entries
}

func TestInit(t *testing.T) {
	t.Run("creates log and key files with owner-only permissions", func(t *testing.T) {
		_, path := newTestLog(t)

		for _, p := range []string{path, SigningKeyPath(path)} {
			info, err := os.Stat(p)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		}
	})

	t.Run("reuses the signing key on reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.log")
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		first, err := Init(path, logger)
		require.NoError(t, err)
		firstPub := first.PublicKey()
		require.NoError(t, first.Close())

		second, err := Init(path, logger)
		require.NoError(t, err)
		defer func() { _ = second.Close() }()

		assert.Equal(t, firstPub, second.PublicKey())
	})
}

func TestLogAppendsSignedEntries(t *testing.T) {
	auditLog, path := newTestLog(t)

	require.NoError(t, auditLog.Log("read_secret", "deploy-bot", "db_password", "success"))
	require.NoError(t, auditLog.Log("write_secret", "admin", "api_key", "success"))
	auditLog.LogError("read_secret", "stranger", "db_password", "denied by policy")

	entries := readEntries(t, path)
	require.Len(t, entries, 3)

	assert.Equal(t, "read_secret", entries[0].Event)
	assert.Equal(t, "deploy-bot", entries[0].Client)
	assert.Equal(t, "db_password", entries[0].Secret)
	assert.Equal(t, "success", entries[0].Result)
	assert.False(t, entries[0].Timestamp.IsZero())

	assert.Contains(t, entries[2].Result, "denied by policy")

	for i := range entries {
		assert.True(t, VerifyEntry(auditLog.PublicKey(), &entries[i]), "entry %d", i)
	}
}

func TestVerifyEntryDetectsTampering(t *testing.T) {
	auditLog, path := newTestLog(t)
	require.NoError(t, auditLog.Log("read_secret", "deploy-bot", "db_password", "success"))

	entries := readEntries(t, path)
	require.Len(t, entries, 1)

	t.Run("intact entry verifies", func(t *testing.T) {
		assert.True(t, VerifyEntry(auditLog.PublicKey(), &entries[0]))
	})

	t.Run("modified field fails", func(t *testing.T) {
		tampered := entries[0]
		tampered.Result = "denied"
		assert.False(t, VerifyEntry(auditLog.PublicKey(), &tampered))
	})

	t.Run("modified timestamp fails", func(t *testing.T) {
		tampered := entries[0]
		tampered.Timestamp = tampered.Timestamp.Add(time.Second)
		assert.False(t, VerifyEntry(auditLog.PublicKey(), &tampered))
	})

	t.Run("garbage signature fails", func(t *testing.T) {
		tampered := entries[0]
		tampered.Signature = "not-base64!!!"
		assert.False(t, VerifyEntry(auditLog.PublicKey(), &tampered))
	})
}

func TestCanonical(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	entry := Entry{
		Timestamp: ts,
		Event:     "read_secret",
		Client:    "deploy-bot",
		Secret:    "db_password",
		Result:    "success",
	}

	expected := ts.Format(time.RFC3339Nano) + "|read_secret|deploy-bot|db_password|success"
	assert.Equal(t, expected, string(Canonical(&entry)))
}

func TestVerifyFile(t *testing.T) {
	t.Run("all entries valid", func(t *testing.T) {
		auditLog, path := newTestLog(t)
		require.NoError(t, auditLog.Log("read_secret", "a", "s1", "success"))
		require.NoError(t, auditLog.Log("read_secret", "b", "s2", "success"))

		report, err := VerifyFile(path, auditLog.PublicKey())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 2, report.Valid)
		assert.Equal(t, 0, report.Invalid)
		assert.Empty(t, report.InvalidLines)
	})

	t.Run("detects tampered lines", func(t *testing.T) {
		auditLog, path := newTestLog(t)
		require.NoError(t, auditLog.Log("read_secret", "a", "s1", "success"))
		require.NoError(t, auditLog.Log("read_secret", "b", "s2", "success"))

		// Flip the result of the first entry directly in the file.
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		tampered := strings.Replace(string(data), `"result":"success"`, `"result":"denied"`, 1)
		require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

		report, err := VerifyFile(path, auditLog.PublicKey())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 1, report.Valid)
		assert.Equal(t, 1, report.Invalid)
		assert.Equal(t, []int{1}, report.InvalidLines)
	})

	t.Run("counts unparsable lines as invalid", func(t *testing.T) {
		auditLog, path := newTestLog(t)
		require.NoError(t, auditLog.Log("read_secret", "a", "s1", "success"))

		file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = file.WriteString("garbage line\n")
		require.NoError(t, err)
		require.NoError(t, file.Close())

		report, err := VerifyFile(path, auditLog.PublicKey())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 1, report.Invalid)
	})

	t.Run("missing file returns an error", func(t *testing.T) {
		auditLog, _ := newTestLog(t)

		_, err := VerifyFile(filepath.Join(t.TempDir(), "absent.log"), auditLog.PublicKey())
		assert.Error(t, err)
	})
}

func TestLoadPublicKey(t *testing.T) {
	auditLog, path := newTestLog(t)

	pub, err := LoadPublicKey(SigningKeyPath(path))
	require.NoError(t, err)
	assert.Equal(t, auditLog.PublicKey(), pub)

	t.Run("missing key file", func(t *testing.T) {
		_, err := LoadPublicKey(filepath.Join(t.TempDir(), "absent.key"))
		assert.Error(t, err)
	})

	t.Run("corrupt key file", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "bad.key")
		require.NoError(t, os.WriteFile(keyPath, []byte("corrupt"), 0o600))

		_, err := LoadPublicKey(keyPath)
		assert.Error(t, err)
	})
}

func TestLogErrorNeverPropagates(t *testing.T) {
	auditLog, _ := newTestLog(t)
	require.NoError(t, auditLog.Close())

	// The underlying file is closed, so the write fails internally;
	// best-effort logging must not panic or surface the error.
	auditLog.LogError("read_secret", "a", "s1", "denied")
	auditLog.LogSuccess("read_secret", "a", "s1")
}

func TestFailureHookCountsSinkFailures(t *testing.T) {
	auditLog, _ := newTestLog(t)

	var failures int
	auditLog.SetFailureHook(func() { failures++ })

	auditLog.LogSuccess("read_secret", "a", "s1")
	assert.Zero(t, failures, "healthy sink must not report failures")

	require.NoError(t, auditLog.Close())

	auditLog.LogSuccess("read_secret", "a", "s1")
	auditLog.LogError("read_secret", "a", "s1", "denied")
	assert.Equal(t, 2, failures)
}
