// Package version carries build metadata injected at link time.
package version

import "strings"

const unknown = "unknown"

var (
	// AppVersion is overridden at build time:
	// go build -ldflags="-X github.com/courseflow/courseflow/pkg/version.AppVersion=v1.2.3"
	AppVersion = "dev"

	// GitCommit is overridden at build time.
	GitCommit = unknown

	// BuildTime is overridden at build time (RFC3339 recommended).
	BuildTime = unknown
)

// Info contains version metadata for the binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Current returns the build's version metadata.
func Current() Info {
	return Info{
		Version:   orDefault(AppVersion, "dev"),
		Commit:    orDefault(GitCommit, unknown),
		BuildTime: orDefault(BuildTime, unknown),
	}
}

// String renders the version for --version output.
func String() string {
	info := Current()
	if info.Commit == unknown {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.Commit) + ")"
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

func orDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
