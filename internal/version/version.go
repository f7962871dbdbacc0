// Package version provides build version information for cri.
package version

// Overridable at build time:
// go build -ldflags "-X cri/internal/version.Version=0.4.0 -X cri/internal/version.Commit=abc123"
var (
	// Version is the semantic version of cri
	Version = "0.3.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// ContextVersion is the schema version written into a workspace's CRI context file.
const ContextVersion = 1

// Info returns a short version string, with the abbreviated commit when known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "cri version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
