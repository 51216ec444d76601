// Package platform maps the host operating system to the target platforms
// a multi-platform build verifies.
package platform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownHostGroup is returned for hosts outside the supported groups.
var ErrUnknownHostGroup = errors.New("unknown host OS group")

// HostGroup is a family of host operating systems sharing one matrix.
type HostGroup string

const (
	Linux   HostGroup = "linux"
	MacOS   HostGroup = "macos"
	Windows HostGroup = "windows"
)

// CrossSuffix selects the cross-toolchain variant of a platform.
const CrossSuffix = "-cross"

var matrix = map[HostGroup][]string{
	Linux: {
		"//platforms:x86_64-unknown-linux-gnu",
		"//platforms:i686-unknown-linux-gnu",
		"//platforms:aarch64-unknown-linux-gnu",
	},
	Windows: {
		"//platforms:x86_64-pc-windows-msvc",
		"//platforms:i686-pc-windows-msvc",
		"//platforms:aarch64-pc-windows-msvc",
		"//platforms:x86_64-pc-windows-gnu",
	},
	MacOS: {
		"//platforms:aarch64-apple-darwin",
	},
}

// DetectHostGroup maps a GOOS value (runtime.GOOS) to its host group.
func DetectHostGroup(goos string) (HostGroup, error) {
	switch strings.ToLower(goos) {
	case "linux":
		return Linux, nil
	case "darwin":
		return MacOS, nil
	case "windows":
		return Windows, nil
	}
	return "", fmt.Errorf("%w: GOOS=%q", ErrUnknownHostGroup, goos)
}

// ParseHostGroup accepts a group name as given on the command line.
func ParseHostGroup(name string) (HostGroup, error) {
	group := HostGroup(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := matrix[group]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownHostGroup, name)
	}
	return group, nil
}

// Targets returns the platform identifiers for group, with the cross
// suffix appended when cross is set. The slice is a fresh copy.
func Targets(group HostGroup, cross bool) ([]string, error) {
	base, ok := matrix[group]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHostGroup, string(group))
	}
	out := make([]string, len(base))
	for i, p := range base {
		if cross {
			p += CrossSuffix
		}
		out[i] = p
	}
	return out, nil
}
