//go:build unix

package recorder

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ensureReadable asks the kernel whether the real user may read path, so the
// watcher can skip files it would fail on instead of logging read errors.
func ensureReadable(path string) error {
	if err := unix.Access(path, unix.R_OK); err != nil {
		return fmt.Errorf("permission denied reading %s: %w", path, err)
	}
	return nil
}
