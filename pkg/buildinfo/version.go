// Package buildinfo provides build-time version information.
//
// Release builds set the variables via ldflags:
//
//	go build -ldflags "-X github.com/matzehuels/flatcargo/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/flatcargo/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/flatcargo/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Binaries built with `go install` carry no ldflags; for those the module
// version and VCS stamp recorded by the toolchain are used instead.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

const (
	devVersion     = "dev"
	unknownCommit  = "none"
	unknownDate    = "unknown"
	develModule    = "(devel)"
	shortCommitLen = 12
)

var (
	// Version is the semantic version (e.g., "v1.2.3").
	Version = devVersion

	// Commit is the git commit SHA.
	Commit = unknownCommit

	// Date is the build timestamp.
	Date = unknownDate
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		fill(info)
	}
}

// fill replaces values that were not set by ldflags with what the toolchain
// embedded in the binary.
func fill(info *debug.BuildInfo) {
	if Version == devVersion && info.Main.Version != "" && info.Main.Version != develModule {
		Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == unknownCommit && s.Value != "" {
				Commit = s.Value
			}
		case "vcs.time":
			if Date == unknownDate && s.Value != "" {
				Date = s.Value
			}
		}
	}
}

// ShortCommit returns the commit abbreviated for display.
func ShortCommit() string {
	if len(Commit) > shortCommitLen {
		return Commit[:shortCommitLen]
	}
	return Commit
}

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, ShortCommit(), Date)
}
