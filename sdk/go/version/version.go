// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package version reports the SDK release, which is set at link
// time with -ldflags "-X github.com/simai-sdk/simai-go/sdk/go/version.Version=...".
package version

var (
	// Version will get assigned the release number at compile time
	Version string
)

// GetVersion returns the release number if it was assigned by the compiler
// or "dev" otherwise.
func GetVersion() string {
	if Version != "" {
		return Version
	}
	return "dev"
}
