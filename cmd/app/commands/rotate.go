package commands

import (
	"fmt"
	"io"

	"github.com/allisson/vaultd/internal/rotation"
)

// RunRotate rotates the named secrets, or scans the whole vault for secrets
// past their rotation deadline when names is empty.
func RunRotate(engine *rotation.Engine, writer io.Writer, names []string) error {
	rotated := engine.RotateIfDue(names)

	if len(rotated) == 0 {
		fmt.Fprintln(writer, "No secrets rotated")
		return nil
	}

	fmt.Fprintf(writer, "Rotated %d secret(s):\n", len(rotated))
	for _, name := range rotated {
		fmt.Fprintf(writer, "  %s\n", name)
	}

	return nil
}
