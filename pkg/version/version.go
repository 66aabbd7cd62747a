// Package version reports which sayln build is running.
//
// Release builds stamp the values with ldflags:
//
//	-X github.com/guoyu-zhang/say-like-a-native/pkg/version.Version=$(VERSION)
//	-X github.com/guoyu-zhang/say-like-a-native/pkg/version.Commit=$(COMMIT)
//	-X github.com/guoyu-zhang/say-like-a-native/pkg/version.Date=$(DATE)
//
// Builds without ldflags (go install, go run) fall back to the VCS stamp the
// Go toolchain embeds, so a bug report still names a revision.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Name is the binary name used in version output and MCP handshakes.
const Name = "sayln"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is the JSON shape of `sayln version --json` and the /health
// endpoint's build block.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var (
	vcsOnce     sync.Once
	vcsRevision string
	vcsTime     string
	vcsModified bool
)

func readVCS() {
	vcsOnce.Do(func() {
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				vcsRevision = s.Value
			case "vcs.time":
				vcsTime = s.Value
			case "vcs.modified":
				vcsModified = s.Value == "true"
			}
		}
	})
}

// GetInfo returns the build information, filling unstamped commit and date
// from the embedded VCS settings.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	readVCS()
	if info.Commit == "unknown" && vcsRevision != "" {
		info.Commit = vcsRevision
		info.Modified = vcsModified
	}
	if info.Date == "unknown" && vcsTime != "" {
		info.Date = vcsTime
	}
	return info
}

// ShortCommit trims a commit hash to the 12 characters shown in text output.
func (b BuildInfo) ShortCommit() string {
	if len(b.Commit) > 12 {
		return b.Commit[:12]
	}
	return b.Commit
}

// String renders one line such as
// "sayln 1.2.0 (3f9c2a1b7d4e, 2026-01-05T10:00:00Z, go1.25.5 linux/amd64)".
func String() string {
	info := GetInfo()
	commit := info.ShortCommit()
	if info.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("%s %s (%s, %s, %s %s)", Name, info.Version, commit, info.Date, info.GoVersion, info.Platform)
}

// Short returns just the version.
func Short() string {
	return Version
}

// UserAgent identifies sayln in outbound requests, e.g. "sayln/1.2.0".
func UserAgent() string {
	return Name + "/" + Version
}
