package commands

import (
	"fmt"
	"io"

	"github.com/allisson/vaultd/internal/crypto"
)

// RunGenerateSecret generates a random secret value of the given type and
// writes it to writer. Nothing is stored in the vault.
func RunGenerateSecret(writer io.Writer, secretType string) error {
	value, err := crypto.GenerateSecretValue(crypto.ParseSecretType(secretType))
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}

	fmt.Fprintln(writer, value)
	return nil
}
