// SPDX-License-Identifier: MIT
//
// Package build exposes metadata embedded into the binary at compile
// time via linker flags:
//
//	go build -ldflags "-X .../pkg/build.buildName=blinky-time \
//	    -X .../pkg/build.buildVersion=0.3.0"
//
// Development builds without ldflags fall back to "dev" values so the
// binary still runs.
package build

type Flags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildFlags = &Flags{
	Name:    "blinky-time",
	Time:    "unknown",
	Commit:  "unknown",
	Version: "dev",
}

// Initialize copies any ldflags-injected values over the development
// defaults. Call once early in startup.
func Initialize() {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime != "" {
		buildFlags.Time = buildTime
	}
	if buildCommit != "" {
		buildFlags.Commit = buildCommit
	}
	if buildVersion != "" {
		buildFlags.Version = buildVersion
	}
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Flags {
	return buildFlags
}
