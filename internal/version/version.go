// Package version reports the release version of the dispatch binary.
package version

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the release version from the embedded VERSION file. When the
// file is empty it falls back to module build info, then to "dev", so a
// source build still reports something useful.
func Get() string {
	if v := strings.TrimSpace(versionContent); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
