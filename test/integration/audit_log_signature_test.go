// Package integration provides integration tests for audit log cryptographic signatures.
package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/vaultd/internal/audit"
)

// TestAuditLogSignature_EndToEnd verifies that API activity produces a signed
// audit trail that can be verified offline, and that tampering is detected.
func TestAuditLogSignature_EndToEnd(t *testing.T) {
	ctx := setupIntegrationTest(t)
	auditLogPath := filepath.Join(ctx.dataDir, "audit.log")

	// Produce a mix of successes and denials.
	resp, _ := ctx.makeRequest(t, http.MethodPost, "/secret", "root", map[string]interface{}{
		"name":  "db_password",
		"value": "audited-value",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = ctx.makeRequest(t, http.MethodGet, "/secret/db_password", "root", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ctx.makeRequest(t, http.MethodGet, "/secret/db_admin_password", "reader", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	pub, err := audit.LoadPublicKey(audit.SigningKeyPath(auditLogPath))
	require.NoError(t, err, "failed to load audit public key")

	t.Run("untampered log verifies", func(t *testing.T) {
		report, err := audit.VerifyFile(auditLogPath, pub)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, report.Total, 3)
		assert.Equal(t, report.Total, report.Valid)
		assert.Zero(t, report.Invalid)
	})

	t.Run("tampered entry is detected", func(t *testing.T) {
		raw, err := os.ReadFile(auditLogPath)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"client":"reader"`)

		tampered := strings.Replace(string(raw), `"client":"reader"`, `"client":"someone"`, 1)
		tamperedPath := filepath.Join(ctx.dataDir, "audit-tampered.log")
		require.NoError(t, os.WriteFile(tamperedPath, []byte(tampered), 0o600))

		report, err := audit.VerifyFile(tamperedPath, pub)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Invalid)
		assert.NotEmpty(t, report.InvalidLines)
	})

	t.Run("appended forgery is detected", func(t *testing.T) {
		raw, err := os.ReadFile(auditLogPath)
		require.NoError(t, err)

		forgedPath := filepath.Join(ctx.dataDir, "audit-forged.log")
		forged := append(raw, []byte(`{"timestamp":"2026-01-01T00:00:00Z","event":"read","client":"ghost","result":"success","signature":"AAAA"}`+"\n")...)
		require.NoError(t, os.WriteFile(forgedPath, forged, 0o600))

		report, err := audit.VerifyFile(forgedPath, pub)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Invalid)
	})
}
