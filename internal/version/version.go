// Package version carries build information stamped by the linker:
//
//	go build -ldflags "-X github.com/banshee-data/footfall/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build information for the version command.
func String() string {
	return fmt.Sprintf("footfall %s (%s, built %s)", Version, GitSHA, BuildTime)
}
