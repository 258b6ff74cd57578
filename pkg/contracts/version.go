// Package contracts holds the data contracts shared by every panelrecon
// binary.
package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version is the current version of the application
	Version = "0.3.0"

	// ReportFormatVersion versions the summary JSON and HTTP report layout
	ReportFormatVersion = "v1"
)

var (
	// BuildTime is set during build using ldflags
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version      string `json:"version"`
	BuildTime    string `json:"build_time"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	ReportFormat string `json:"report_format"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:      Version,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		ReportFormat: ReportFormatVersion,
	}
}

// GetFullVersionString returns a one-line version string for -version
func GetFullVersionString(binary string) string {
	info := GetVersionInfo()
	return fmt.Sprintf("%s %s (built: %s, commit: %s, go: %s, os: %s/%s)",
		binary, info.Version, info.BuildTime, info.GitCommit,
		info.GoVersion, info.OS, info.Architecture)
}
