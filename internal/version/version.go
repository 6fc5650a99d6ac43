// Package version reports build metadata for the md-to-latex binary.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with
//
//	-ldflags "-X github.com/markdown-to-latex/manager/internal/version.Version=v1.2.0"
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	Commit    string    `json:"commit,omitempty" yaml:"commit,omitempty"`
	Dirty     bool      `json:"dirty,omitempty" yaml:"dirty,omitempty"`
	BuiltAt   time.Time `json:"built_at,omitzero" yaml:"built_at,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
}

type vcsSettings struct {
	module   string
	revision string
	modified bool
	time     string
}

var readBuildInfo = debug.ReadBuildInfo

// Get merges the ldflags values with the module build information. Values
// set through ldflags win.
func Get() Info {
	vcs := readVCS()

	info := Info{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     vcs.modified,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if info.Version == "" || info.Version == "dev" {
		switch {
		case vcs.module != "" && vcs.module != "(devel)":
			info.Version = vcs.module
		case len(vcs.revision) >= 7:
			info.Version = "dev-" + vcs.revision[:7]
		default:
			info.Version = "dev"
		}
	}
	if info.Commit == "" {
		info.Commit = vcs.revision
	}

	date := BuildDate
	if date == "" {
		date = vcs.time
	}
	info.BuiltAt = parseDate(date)
	return info
}

func readVCS() vcsSettings {
	var s vcsSettings
	bi, ok := readBuildInfo()
	if !ok || bi == nil {
		return s
	}
	s.module = bi.Main.Version
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			s.revision = setting.Value
		case "vcs.modified":
			s.modified = setting.Value == "true"
		case "vcs.time":
			s.time = setting.Value
		}
	}
	return s
}

// IsRelease reports whether the binary carries a tagged version.
func (i Info) IsRelease() bool {
	return i.Version != "dev" && !strings.HasPrefix(i.Version, "dev-")
}

// Short renders "v1.2.0 (abc1234)" or just the version.
func (i Info) Short() string {
	commit := i.shortCommit()
	switch {
	case commit == "":
		return i.Version
	case strings.HasSuffix(i.Version, commit):
		return i.Version
	default:
		s := fmt.Sprintf("%s (%s", i.Version, commit)
		if i.Dirty {
			s += ", dirty"
		}
		return s + ")"
	}
}

func (i Info) shortCommit() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}

// String renders one "key: value" line per known field.
func (i Info) String() string {
	lines := []string{"md-to-latex " + i.Version}
	if i.Commit != "" {
		commit := i.Commit
		if i.Dirty {
			commit += " (dirty)"
		}
		lines = append(lines, "commit:   "+commit)
	}
	if !i.BuiltAt.IsZero() {
		lines = append(lines, "built:    "+i.BuiltAt.UTC().Format(time.RFC3339))
	}
	lines = append(lines,
		"go:       "+i.GoVersion,
		"platform: "+i.Platform,
	)
	return strings.Join(lines, "\n")
}

// JSON renders the info as indented JSON.
func (i Info) JSON() ([]byte, error) {
	return json.MarshalIndent(i, "", "  ")
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
