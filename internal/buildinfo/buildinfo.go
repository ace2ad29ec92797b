// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo holds build-time version metadata injected via ldflags.
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// UserAgent returns the User-Agent string sent on backend requests.
func UserAgent() string {
	return fmt.Sprintf("braindumpster-sub/%s", Version)
}

// String returns a human readable build summary.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
