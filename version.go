// Package storefront holds build information for the storefront binary.
// The engine itself lives in the subpackages.
package storefront

// Build information, overridden with -ldflags "-X" at release time.
var (
	// Version is the storefront release
	Version = "development"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)

// UserAgent identifies the storefront in outgoing requests and order sources.
func UserAgent() string {
	return "storefront/" + Version
}
