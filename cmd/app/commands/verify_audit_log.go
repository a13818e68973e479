package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/allisson/vaultd/internal/audit"
)

// RunVerifyAuditLog checks every entry of the audit log against its Ed25519
// signature and reports tampered or unparsable lines.
func RunVerifyAuditLog(writer io.Writer, auditLogPath, format string) error {
	pub, err := audit.LoadPublicKey(audit.SigningKeyPath(auditLogPath))
	if err != nil {
		return fmt.Errorf("failed to load audit signing key: %w", err)
	}

	report, err := audit.VerifyFile(auditLogPath, pub)
	if err != nil {
		return fmt.Errorf("failed to verify audit log: %w", err)
	}

	if format == "json" {
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputVerifyText(writer, report)
	}

	if report.Invalid > 0 {
		return fmt.Errorf("audit log verification failed: %d invalid entries", report.Invalid)
	}

	return nil
}

func outputVerifyText(writer io.Writer, report *audit.VerifyReport) {
	fmt.Fprintf(writer, "Audit Log Verification\n")
	fmt.Fprintf(writer, "======================\n")
	fmt.Fprintf(writer, "Total entries:   %d\n", report.Total)
	fmt.Fprintf(writer, "Valid entries:   %d\n", report.Valid)
	fmt.Fprintf(writer, "Invalid entries: %d\n", report.Invalid)
	if len(report.InvalidLines) > 0 {
		fmt.Fprintf(writer, "Invalid lines:   %v\n", report.InvalidLines)
	}
}
