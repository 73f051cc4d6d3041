//go:build !windows

package main

import "errors"

func shortName(string) (string, error) {
	return "", errors.New("8.3 aliases exist only on Windows")
}
