// Package version reports which delegent build is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/delegent/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/delegent/internal/version.Commit=abc123
//	  -X github.com/soyeahso/delegent/internal/version.Date=2026-01-01"
//
// Values left at their defaults are filled from the module build info, so
// a binary from "go install" still reports its module version and VCS
// revision.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	v, commit, date := resolve()
	return fmt.Sprintf("delegent %s (commit: %s, built: %s, %s, %s/%s)",
		v, short(commit), date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent by the outbound tool requests.
func UserAgent() string {
	v, _, _ := resolve()
	return "delegent/" + v
}

func resolve() (v, commit, date string) {
	v, commit, date = Version, Commit, Date
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return v, commit, date
	}
	if v == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		v = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "unknown" {
				commit = s.Value
			}
		case "vcs.time":
			if date == "unknown" {
				date = s.Value
			}
		}
	}
	return v, commit, date
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
