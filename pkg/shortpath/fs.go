package shortpath

import (
	"errors"
	"os"
)

var (
	// ErrNoIdentity is reported when a lookup succeeds but yields a zero
	// device or serial number.
	ErrNoIdentity = errors.New("no identity information")

	// ErrUnsupported is returned by OSFS.Identity on platforms without an
	// identity primitive.
	ErrUnsupported = errors.New("file identity is not supported on this platform")
)

// OSFS implements FS on the host operating system.
type OSFS struct{}

// ReadDirNames returns the entries of dir in the order the operating system
// enumerates them. Unlike os.ReadDir the result is not sorted.
func (OSFS) ReadDirNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}
