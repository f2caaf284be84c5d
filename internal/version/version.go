// Package version exposes build information stamped at link time.
package version

import "fmt"

// Populated via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a one-line human-readable version string.
func Info() string {
	return fmt.Sprintf("bedrockproxy %s (commit %s, built %s)", Version, Commit, Date)
}
