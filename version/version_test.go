package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

// withVersion sets the build variables for one test.
func withVersion(t *testing.T, v, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuildTime, origRead := Version, GitCommit, BuildTime, readBuildInfo
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readBuildInfo = origVersion, origCommit, origBuildTime, origRead
	})
	Version, GitCommit, BuildTime = v, commit, built
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
}

func TestFull(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		built   string
		want    string
	}{
		{"version only", "1.0.0", "", "", "1.0.0"},
		{"with commit", "1.0.0", "abc1234", "", "1.0.0-abc1234"},
		{"with build time", "1.0.0", "", "2024-06-01T12:00:00Z", "1.0.0 (2024-06-01T12:00:00Z)"},
		{"all fields", "2.1.0", "def5678", "2024-06-01T12:00:00Z", "2.1.0-def5678 (2024-06-01T12:00:00Z)"},
		{"dev build", "dev", "", "", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, tt.version, tt.commit, tt.built)
			if got := Full(); got != tt.want {
				t.Errorf("Full() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvedFromBuildInfo(t *testing.T) {
	withVersion(t, "dev", "", "")
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Path: "github.com/satfetch/satfetch", Version: "v0.3.1"}}, true
	}
	if got := Resolved(); got != "v0.3.1" {
		t.Errorf("Resolved() = %q, want v0.3.1", got)
	}

	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true
	}
	if got := Resolved(); got != "dev" {
		t.Errorf("Resolved() = %q, want dev", got)
	}
}

func TestAppID(t *testing.T) {
	withVersion(t, "1.2.0+build/7", "", "")
	if got := AppID(); got != "satfetch-1.2.0-build-7" {
		t.Errorf("AppID() = %q", got)
	}

	withVersion(t, strings.Repeat("9", 80), "", "")
	if got := AppID(); len(got) != maxAppIDLength {
		t.Errorf("AppID() length = %d, want %d", len(got), maxAppIDLength)
	}
}
