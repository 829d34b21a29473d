// Package version holds the melpo build identity printed by the version
// command and stamped into the run banner.
package version

import "github.com/fatih/color"

var (
	major = color.New(color.FgYellow, color.Bold).Sprint("0")
	minor = color.New(color.FgGreen, color.Bold).Sprint("1")
	patch = color.New(color.FgBlue, color.Bold).Sprint("0")

	// Version is the semantic version string, colored per component. The
	// -dev suffix marks builds not cut from a release tag.
	Version = major + "." + minor + "." + patch + "-dev"

	// GitCommit and BuildDate are empty unless stamped at build time:
	//   -ldflags "-X mnemos/internal/version.GitCommit=$(git rev-parse --short HEAD)"
	GitCommit = ""
	BuildDate = ""
)
