// Package version reports build metadata set through -ldflags -X, falling
// back to what the Go toolchain embedded in the binary.
package version

import (
	"runtime/debug"
	"strconv"
)

// set with -ldflags "-X github.com/keithlinneman/authgate/internal/version.Version=..."
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	// "true" or "false"; anything else is unknown
	VCSDirty string
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	base := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		VCSDirty:   parseBool(VCSDirty),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return base
	}
	return merge(base, bi)
}

// merge fills fields ldflags left empty from the embedded build info.
func merge(out Info, bi *debug.BuildInfo) Info {
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" && s.Value != "" {
				out.Commit = s.Value
			}
		case "vcs.time":
			if out.CommitDate == "" {
				out.CommitDate = s.Value
			}
			if out.BuildDate == "" {
				out.BuildDate = s.Value
			}
		case "vcs.modified":
			if out.VCSDirty == nil {
				out.VCSDirty = parseBool(s.Value)
			}
		}
	}
	return out
}

func parseBool(s string) *bool {
	b, err := strconv.ParseBool(s)
	if err != nil || s == "" {
		return nil
	}
	return &b
}
