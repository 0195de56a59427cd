package version

import "fmt"

// VERSION is the major.minor.patch version, injected at build time via -ldflags.
var VERSION string

// GITCOMMIT is the abbreviated git hash, injected at build time via -ldflags.
var GITCOMMIT string

// VersionToString describes the build, or returns "dev" for a binary built without injected versions.
func VersionToString() string {
	switch {
	case VERSION == "" && GITCOMMIT == "":
		return "dev"
	case GITCOMMIT == "":
		return VERSION
	default:
		return fmt.Sprintf("%s - %s", VERSION, GITCOMMIT)
	}
}
