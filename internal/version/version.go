package version

// Version is set at build time via:
//
//	-ldflags "-X github.com/StormyCloudInc/selector-vanitygen/internal/version.Version=v1.0.0"
//
// Defaults to "dev" for local/untagged builds.
var Version = "dev"

// UserAgent identifies this build to remote services.
func UserAgent() string {
	return "selector-vanitygen/" + Version
}
