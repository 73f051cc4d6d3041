//go:build windows

package platform

import (
	"path/filepath"
	"strings"
)

const ShortNames = true

const extendedPrefix = `\\?\`

// ExtendedLengthPath returns the \\?\ form of an absolute drive path so that
// it can exceed MAX_PATH. UNC paths gain the \\?\UNC\ prefix; relative and
// already prefixed paths are returned unchanged.
func ExtendedLengthPath(path string) string {
	if strings.HasPrefix(path, extendedPrefix) || !filepath.IsAbs(path) {
		return path
	}
	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, `\\`) {
		return extendedPrefix + `UNC\` + cleaned[2:]
	}
	return extendedPrefix + cleaned
}
