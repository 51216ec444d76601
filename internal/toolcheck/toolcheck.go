// Package toolcheck verifies that the external executables the harness
// drives are installed before any work begins.
package toolcheck

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/buck2hub/buckal-harness/internal/logger"
	"github.com/buck2hub/buckal-harness/internal/shell"
)

var (
	// ErrToolNotFound is returned when a required executable is not on PATH.
	ErrToolNotFound = errors.New("required tool not found on PATH")

	// ErrToolTooOld is returned when a tool reports a version below its minimum.
	ErrToolTooOld = errors.New("required tool is too old")
)

// Tool is an executable the harness depends on.
type Tool struct {
	Name string

	// MinVersion is an optional semver minimum such as "v1.75.0"
	MinVersion string

	// VersionArgs print the version; defaults to --version
	VersionArgs []string
}

// Required returns the tools every harness run needs.
func Required() []Tool {
	return []Tool{
		{Name: "cargo"},
		{Name: "buck2"},
		{Name: "python3"},
		{Name: "git"},
	}
}

// Checker verifies tool availability.
type Checker struct {
	// LookPath resolves executables; defaults to exec.LookPath
	LookPath func(file string) (string, error)

	// Runner executes version probes; only needed for tools with MinVersion
	Runner shell.Runner

	// Env is the environment for version probes
	Env []string

	Console *logger.Console
}

// Ensure returns an error naming the first missing or outdated tool.
func (c *Checker) Ensure(ctx context.Context, tools ...Tool) error {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	console := c.Console
	if console == nil {
		console = logger.Discard()
	}

	for _, tool := range tools {
		path, err := lookPath(tool.Name)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrToolNotFound, tool.Name)
		}
		if tool.MinVersion == "" || c.Runner == nil {
			continue
		}

		args := tool.VersionArgs
		if len(args) == 0 {
			args = []string{"--version"}
		}
		res, err := c.Runner.Output(ctx, shell.Command{Name: path, Args: args, Env: c.Env})
		if err != nil {
			console.Warn("could not determine %s version: %v", tool.Name, err)
			continue
		}
		version, ok := ParseVersion(res.Stdout)
		if !ok {
			console.Warn("could not parse %s version from %q", tool.Name, strings.TrimSpace(res.Stdout))
			continue
		}
		if semver.Compare(version, tool.MinVersion) < 0 {
			return fmt.Errorf("%w: %s %s < %s", ErrToolTooOld, tool.Name, version, tool.MinVersion)
		}
	}
	return nil
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts the first dotted version number from out and
// returns it in canonical semver form ("v1.2.3").
func ParseVersion(out string) (string, bool) {
	m := versionPattern.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	v := fmt.Sprintf("v%s.%s.%s", m[1], m[2], patch)
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}
