// Package version reports the build version of connpool binaries.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/go-i2p/connpool/version.Version=1.0.0 \
//	    -X github.com/go-i2p/connpool/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Otherwise the commit and build time come from the VCS stamp the Go
// toolchain embeds, when there is one.
package version

import (
	"runtime/debug"
)

// Version is the software version.
var Version = "dev"

// GitCommit is the short commit hash.
var GitCommit = ""

// BuildTime is when the commit was made or the binary built, RFC 3339.
var BuildTime = ""

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	fromBuildInfo(info)
}

func fromBuildInfo(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if GitCommit == "" && len(s.Value) >= 7 {
				GitCommit = s.Value[:7]
			}
		case "vcs.time":
			if BuildTime == "" {
				BuildTime = s.Value
			}
		}
	}
}

// Full returns the version string including commit and build time if available.
func Full() string {
	v := Version
	if GitCommit != "" {
		v += "-" + GitCommit
	}
	if BuildTime != "" {
		v += " (" + BuildTime + ")"
	}
	return v
}
