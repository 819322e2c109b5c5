package versions

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) { //nolint:paralleltest // mutates the package-level build variables
	origVersion, origCommit, origDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origDate
	})

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)

	tests := []struct {
		name          string
		version       string
		commit        string
		buildDate     string
		wantVersion   string
		wantBuildDate string
	}{
		{
			name:          "dev build without commit",
			version:       "dev",
			commit:        unknownStr,
			buildDate:     unknownStr,
			wantVersion:   "build-unknown",
			wantBuildDate: unknownStr,
		},
		{
			name:          "dev build derives version from commit",
			version:       "dev",
			commit:        "abc123def456789",
			buildDate:     unknownStr,
			wantVersion:   "build-abc123de",
			wantBuildDate: unknownStr,
		},
		{
			name:          "dev build keeps short commit whole",
			version:       "dev",
			commit:        "short",
			buildDate:     unknownStr,
			wantVersion:   "build-short",
			wantBuildDate: unknownStr,
		},
		{
			name:          "release version passes through",
			version:       "v1.2.3",
			commit:        "abc123def456789",
			buildDate:     "2024-01-15T10:30:00Z",
			wantVersion:   "v1.2.3",
			wantBuildDate: "2024-01-15 10:30:00 UTC",
		},
		{
			name:          "build date is humanized",
			version:       "custom-build-1",
			commit:        "xyz789",
			buildDate:     "2024-03-20T15:45:30Z",
			wantVersion:   "custom-build-1",
			wantBuildDate: "2024-03-20 15:45:30 UTC",
		},
		{
			name:          "unparseable build date is kept verbatim",
			version:       "v2.0.0",
			commit:        "def456",
			buildDate:     "not-a-date",
			wantVersion:   "v2.0.0",
			wantBuildDate: "not-a-date",
		},
	}

	for _, tt := range tests { //nolint:paralleltest // shares the package-level build variables
		t.Run(tt.name, func(t *testing.T) {
			Version = tt.version
			Commit = tt.commit
			BuildDate = tt.buildDate

			got := GetVersionInfo()

			assert.Equal(t, tt.wantVersion, got.Version, "resolved version mismatch")
			assert.Equal(t, tt.commit, got.Commit, "commit should pass through untouched")
			assert.Equal(t, tt.wantBuildDate, got.BuildDate, "build date mismatch")
			assert.Equal(t, runtime.Version(), got.GoVersion, "go version should come from the runtime")
			assert.Equal(t, platform, got.Platform, "platform should be GOOS/GOARCH")
		})
	}
}
