// Package version carries build metadata for the odds-crawler binary,
// injected via -ldflags at release time.
package version

var (
	// Version is the semantic version of the crawler binary.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)
