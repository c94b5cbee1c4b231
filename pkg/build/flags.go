// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata stamped into the binary at link time:
//
//	go build -ldflags "-X vizpipe/pkg/build.buildVersion=0.2.0 \
//	    -X vizpipe/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X vizpipe/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds run without ldflags; the defaults below are kept and
// Initialize reports which values were missing.
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildInfo = &Info{
	Name:        "vizpipe",
	Description: "Real-time audio analysis for music visualizers",
	Time:        "unknown",
	Commit:      "unknown",
	Version:     "dev",
}

// Initialize copies the link-time values into the build info. Values that
// were not provided keep their development defaults and are reported in
// the returned error, which callers may treat as a warning.
func Initialize() error {
	var errs []error
	set := func(dst *string, val, flag string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = val
	}

	set(&buildInfo.Name, buildName, "BuildName")
	set(&buildInfo.Time, buildTime, "BuildTime")
	set(&buildInfo.Commit, buildCommit, "BuildCommit")
	set(&buildInfo.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildInfo
}
