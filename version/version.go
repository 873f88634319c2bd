// Package version provides build-time version information for satfetch.
//
// The variables are set at build time using ldflags:
//
//	go build -ldflags "-X github.com/satfetch/satfetch/version.Version=1.0.0 \
//	    -X github.com/satfetch/satfetch/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without ldflags, Version falls back to the module version recorded by
// `go install`, or "dev".
package version

import (
	"runtime/debug"
	"strings"
)

// Version is the software version, set at build time via ldflags.
var Version = "dev"

// GitCommit is the git commit hash, set at build time via ldflags.
var GitCommit = ""

// BuildTime is when the binary was built, set at build time via ldflags.
var BuildTime = ""

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// maxAppIDLength is the longest application id the SDK accepts.
const maxAppIDLength = 50

// Resolved returns Version, or the main module version when Version was not
// set at build time.
func Resolved() string {
	if Version != "dev" && Version != "" {
		return Version
	}
	if info, ok := readBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}

// Full returns the version string including commit and build time if available.
func Full() string {
	v := Resolved()
	if GitCommit != "" {
		v += "-" + GitCommit
	}
	if BuildTime != "" {
		v += " (" + BuildTime + ")"
	}
	return v
}

// AppID returns the application id sent with object-store requests, for
// example "satfetch-1.2.0". Characters outside [A-Za-z0-9._-] become '-'.
func AppID() string {
	id := "satfetch-" + Resolved()
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, id)
	if len(id) > maxAppIDLength {
		id = id[:maxAppIDLength]
	}
	return id
}
