//go:build windows

package shortpath

import (
	"io/fs"

	"golang.org/x/sys/windows"
)

// Identity opens path without following reparse points and returns the volume
// serial number and the 64-bit file index of the handle.
func (OSFS) Identity(path string) (Identity, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Identity{}, &fs.PathError{Op: "open", Path: path, Err: err}
	}

	h, err := windows.CreateFile(
		p,
		0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT,
		0,
	)
	if err != nil {
		return Identity{}, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	defer windows.CloseHandle(h)

	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		return Identity{}, &fs.PathError{Op: "GetFileInformationByHandle", Path: path, Err: err}
	}

	return Identity{
		Device: uint64(info.VolumeSerialNumber),
		Serial: uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow),
	}, nil
}
