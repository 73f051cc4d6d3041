//go:build !unix

package recorder

// Windows ACLs are not checked ahead of time; the read itself reports denial.
func ensureReadable(string) error {
	return nil
}
