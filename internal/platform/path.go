//go:build !windows

package platform

// ShortNames reports whether the target filesystem family can hand out 8.3
// short component names. Only Windows does.
const ShortNames = false

// ExtendedLengthPath is a no-op on non-Windows platforms.
func ExtendedLengthPath(path string) string {
	return path
}
