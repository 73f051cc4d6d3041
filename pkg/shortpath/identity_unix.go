//go:build unix

package shortpath

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// Identity returns st_dev and st_ino from lstat(2).
func (OSFS) Identity(path string) (Identity, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Identity{}, &fs.PathError{Op: "lstat", Path: path, Err: err}
	}
	return Identity{Device: uint64(st.Dev), Serial: uint64(st.Ino)}, nil
}
