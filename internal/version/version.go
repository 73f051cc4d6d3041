// Package version holds the build version, set with
// -ldflags "-X github.com/saworbit/pathkeeper/internal/version.Version=...".
package version

var Version = "dev"
