// Package version holds build-time identification for the engine binary.
// The values are overridden at build time via -ldflags "-X ...".
package version

import "runtime"

var (
	// Version is the semantic version of this build.
	Version = "dev"
	// Commit is the VCS commit hash this build was produced from.
	Commit = "unknown"
	// BuildDate is the RFC3339 timestamp this build was produced at.
	BuildDate = "unknown"
)

// Info returns the build identification as a string map, suitable for
// log fields or Prometheus label values.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"go_version": runtime.Version(),
		"commit":     Commit,
		"build_date": BuildDate,
	}
}
