package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/allisson/vaultd/internal/crypto"
)

// RunInitMasterKey creates the master key file if it does not already exist.
// An existing key is left untouched.
func RunInitMasterKey(writer io.Writer, path string) error {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	masterKey, err := crypto.LoadOrCreateMasterKey(path)
	if err != nil {
		return fmt.Errorf("failed to initialize master key: %w", err)
	}
	masterKey.Close()

	if existed {
		fmt.Fprintf(writer, "Master key already exists at %s\n", path)
	} else {
		fmt.Fprintf(writer, "Master key created at %s\n", path)
	}

	return nil
}
