package version

// version is the version of the ethane binary.
//
// Expected to be injected at build time via
// -ldflags "-X github.com/ethane-platform/ethane/internal/version.version=...".
var version string

// Version returns the version of the ethane binary, or an empty string for
// untagged builds.
func Version() string {
	return version
}
