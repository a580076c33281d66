// Package version carries build information set by ldflags.
package version

import "fmt"

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version information
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// Producer names the program in generated documents.
func Producer() string {
	return "aocr " + Version
}

// String returns a one-line summary.
func String() string {
	return fmt.Sprintf("aocr %s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}
