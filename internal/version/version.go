// Package version provides the respkv version string.
// The version is set at build time via -ldflags.
package version

import "fmt"

// Version is the current respkv version.
// Override at build time: go build -ldflags "-X github.com/respkv/respkv/internal/version.Version=1.1.0"
var Version = "1.0.0"

// BuildTime is the build timestamp.
// Override at build time: go build -ldflags "-X github.com/respkv/respkv/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var BuildTime = "unknown"

// String returns the version line printed by --version.
func String(program string) string {
	return fmt.Sprintf("%s %s (built %s)", program, Version, BuildTime)
}
