// Package version holds the build-time version string, set via ldflags.
package version

// Version is overridden at build time with -ldflags "-X .../version.Version=...".
var Version = "dev"
