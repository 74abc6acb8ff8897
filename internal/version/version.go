// Package version exposes the build version embedded from the VERSION
// file, so the binary and the release tag cannot drift apart.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the embedded version string.
func Get() string {
	return strings.TrimSpace(raw)
}
