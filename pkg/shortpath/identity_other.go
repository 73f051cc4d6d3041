//go:build !unix && !windows

package shortpath

import "io/fs"

func (OSFS) Identity(path string) (Identity, error) {
	return Identity{}, &fs.PathError{Op: "identity", Path: path, Err: ErrUnsupported}
}
