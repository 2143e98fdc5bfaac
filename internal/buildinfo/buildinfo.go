// Package buildinfo holds the version metadata of the gitpanel binary.
// cmd/gitpanel receives linker-injected values and forwards them with Set.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Info is the build metadata reported by `gitpanel version`.
type Info struct {
	Version string
	Commit  string
	Date    string
	BuiltBy string
}

var current = Info{Version: "dev", Commit: "none", Date: "unknown", BuiltBy: "unknown"}

// Set stores the build metadata received from linker-injected variables.
func Set(v, c, d, b string) {
	current = Info{Version: v, Commit: c, Date: d, BuiltBy: b}
}

// Get returns the current metadata.
func Get() Info { return current }

// Version returns the build version string.
func Version() string { return current.Version }

// Enrich fills the commit and builder from the embedded module build info
// when the linker did not provide them.
func Enrich() {
	if current.Commit != "none" && current.BuiltBy != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if current.Commit == "none" {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				current.Commit = setting.Value
			}
		}
	}
	if current.BuiltBy == "unknown" {
		current.BuiltBy = info.GoVersion
	}
}

// String formats the metadata on one line.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("gitpanel %s (commit %s, built %s by %s)", i.Version, commit, i.Date, i.BuiltBy)
}
