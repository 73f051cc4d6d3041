//go:build windows

package platform

import "testing"

func TestExtendedLengthPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "drive path", in: `C:\Program Files\app`, want: `\\?\C:\Program Files\app`},
		{name: "uncleaned drive path", in: `C:\a\..\b\.\c`, want: `\\?\C:\b\c`},
		{name: "unc share", in: `\\server\share\dir`, want: `\\?\UNC\server\share\dir`},
		{name: "already prefixed", in: `\\?\C:\x`, want: `\\?\C:\x`},
		{name: "relative", in: `dir\file`, want: `dir\file`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtendedLengthPath(tt.in); got != tt.want {
				t.Errorf("ExtendedLengthPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
	if !ShortNames {
		t.Fatal("ShortNames must be true on Windows")
	}
}
