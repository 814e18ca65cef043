package version

import "fmt"

var (
	// Version is the current sensorhub version, set with -ldflags at build time.
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build information for logs and the debug page.
func String() string {
	return fmt.Sprintf("sensorhub %s (%s, built %s)", Version, GitSHA, BuildTime)
}
