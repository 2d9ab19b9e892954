// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/topoagent/internal/version.Version=...
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("topoagent %s (commit %s, built %s)", Version, Commit, Date)
}
