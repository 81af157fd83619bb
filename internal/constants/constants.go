// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// DefaultCacheDir is where downloaded artifacts (cities CSV, station
// manifests) are kept between runs. Eviction is manual: delete the files.
const DefaultCacheDir = ".cache"
