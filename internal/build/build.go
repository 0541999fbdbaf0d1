// Package build holds build-time metadata injected via ldflags.
package build

var (
	// AppName is the binary and config file base name.
	AppName = "harvester"

	// Version is the semantic version, set at build time.
	Version = "0.0.0"
)
