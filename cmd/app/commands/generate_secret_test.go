package commands

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGenerateSecret(t *testing.T) {
	t.Run("api key", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RunGenerateSecret(&buf, "api_key"))
		assert.Len(t, strings.TrimSpace(buf.String()), 32)
	})

	t.Run("database password", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RunGenerateSecret(&buf, "database_password"))
		assert.Len(t, strings.TrimSpace(buf.String()), 64)
	})

	t.Run("encryption key is base64", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RunGenerateSecret(&buf, "encryption_key"))

		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(buf.String()))
		require.NoError(t, err)
		assert.Len(t, decoded, 32)
	})

	t.Run("unknown type falls back to api key", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RunGenerateSecret(&buf, "mystery"))
		assert.Len(t, strings.TrimSpace(buf.String()), 32)
	})
}
