// Package versions provides version information for the application.
package versions

import (
	"fmt"
	"runtime"
	"time"
)

const unknownStr = "unknown"

// Values populated at build time via ldflags.
var (
	// Version is the current version of the application.
	Version = "dev"

	// Commit is the git commit hash of the build.
	Commit = unknownStr

	// BuildDate is the date the binary was built.
	BuildDate = unknownStr
)

// VersionInfo represents structured version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information for the current build.
func GetVersionInfo() VersionInfo {
	version := Version
	if version == "dev" {
		// Dev builds are identified by their commit when one is known.
		if Commit != unknownStr {
			short := Commit
			if len(short) > 8 {
				short = short[:8]
			}
			version = "build-" + short
		} else {
			version = "build-unknown"
		}
	}

	buildDate := BuildDate
	if parsed, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = parsed.Format("2006-01-02 15:04:05 MST")
	}

	return VersionInfo{
		Version:   version,
		Commit:    Commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
