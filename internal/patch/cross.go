package patch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// CrossPatchName identifies the Cross.toml writer in outcomes.
const CrossPatchName = "cross-toml"

// CrossGeneratedMarker marks Cross.toml files this tool owns.
const CrossGeneratedMarker = "# @generated by buckal-test"

// CrossTargets are the Linux triples cross-rs needs system packages for.
var CrossTargets = []string{
	"x86_64-unknown-linux-gnu",
	"i686-unknown-linux-gnu",
	"aarch64-unknown-linux-gnu",
}

// CrossConfig is the subset of cross-rs configuration the tool writes.
type CrossConfig struct {
	Target map[string]CrossTarget `toml:"target"`
}

// CrossTarget holds the per-triple pre-build commands.
type CrossTarget struct {
	PreBuild []string `toml:"pre-build"`
}

// NewCrossConfig builds the configuration installing packagesWithArch for
// the foreign architecture and packagesNoArch natively on every target.
func NewCrossConfig(packagesWithArch, packagesNoArch []string) CrossConfig {
	var packages []string
	for _, pkg := range packagesWithArch {
		packages = append(packages, pkg+":$CROSS_DEB_ARCH")
	}
	packages = append(packages, packagesNoArch...)

	preBuild := []string{
		"dpkg --add-architecture $CROSS_DEB_ARCH",
		"apt-get update && apt-get --assume-yes install " + strings.Join(packages, " "),
	}

	cfg := CrossConfig{Target: make(map[string]CrossTarget, len(CrossTargets))}
	for _, triple := range CrossTargets {
		cfg.Target[triple] = CrossTarget{PreBuild: append([]string(nil), preBuild...)}
	}
	return cfg
}

// RenderCrossToml encodes cfg with the generated marker header.
func RenderCrossToml(cfg CrossConfig) (string, error) {
	body, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode Cross.toml: %w", err)
	}
	return CrossGeneratedMarker + "\n# Cross.toml config for cross-rs/cross.\n\n" + string(body), nil
}

// EnsureCrossToml writes Cross.toml into workspace unless a hand-written one
// is already there.
func EnsureCrossToml(workspace string, packagesWithArch, packagesNoArch []string) (Outcome, error) {
	path := filepath.Join(workspace, "Cross.toml")
	contents, err := RenderCrossToml(NewCrossConfig(packagesWithArch, packagesNoArch))
	if err != nil {
		return failed(CrossPatchName, path, err.Error()), err
	}

	existing, mode, ok, err := readOptional(path)
	if err != nil {
		return failed(CrossPatchName, path, err.Error()), err
	}
	if ok {
		if !strings.Contains(string(existing), CrossGeneratedMarker) {
			return skippedWarn(CrossPatchName, path, "Cross.toml already exists; not overwriting"), nil
		}
		if string(existing) == contents {
			return skipped(CrossPatchName, path, "Cross.toml up to date"), nil
		}
	}

	if err := writeFile(path, contents, mode); err != nil {
		return failed(CrossPatchName, path, err.Error()), err
	}
	return applied(CrossPatchName, path, "wrote Cross.toml"), nil
}
