package config

import "fmt"

// Set via ldflags at build time.
var (
	ModuleName = "github.com/truewear/go-registrar"
	Commit     = "< 40 chars git commit hash via ldflags >"
	BuildDate  = "1970-01-01T00:00:00+00:00"
)

// GetFormattedBuildArgs returns the build info used as the CLI version string.
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
