package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrIncompatibleFlags is returned when requested options contradict each other.
var ErrIncompatibleFlags = errors.New("incompatible options")

// Mode selects where the pipeline operates.
type Mode string

const (
	// ModeSandboxed runs against a throw-away copy of the sample
	ModeSandboxed Mode = "sandboxed"

	// ModeInPlace runs directly in the sample directory on an isolated branch
	ModeInPlace Mode = "inplace"
)

// Default values shared by the CLI and tests.
const (
	DefaultSample         = "fd"
	DefaultTestTarget     = "//..."
	DefaultBundleCell     = "buckal"
	DefaultRulesBzl       = "@buckal//:wrapper.bzl"
	DefaultCatalogFile    = ".buckal-test.yaml"
	GeneratorManifestPath = "cargo-buckal/Cargo.toml"
	LocalBundlesDir       = "buckal-bundles"
)

// Options are the raw invocation arguments before resolution.
type Options struct {
	RepoRoot    string
	SandboxRoot string
	Sample      string
	InPlace     bool
	BuildTarget string
	TestTarget  string
	BranchName  string

	SkipBuild              bool
	MultiPlatform          bool
	CrossPlatforms         bool
	RunTests               bool
	NoFetch                bool
	SupportedPlatformsOnly bool
	NoPush                 bool
	KeepSandbox            bool
	UseInstalledGenerator  bool
	LocalBundles           bool
	Clean                  bool
	CleanCache             bool

	// DropLoadSymbols are rule names removed from the generated root
	// load statement when the bundle does not provide them
	DropLoadSymbols []string
}

// RunConfig is the resolved, read-only configuration of one run.
type RunConfig struct {
	RepoRoot    string
	SandboxRoot string
	Sample      Sample
	Mode        Mode
	BuildTarget string
	TestTarget  string
	BranchName  string

	SkipBuild              bool
	MultiPlatform          bool
	CrossPlatforms         bool
	RunTests               bool
	Fetch                  bool
	SupportedPlatformsOnly bool
	Push                   bool
	KeepSandbox            bool
	UseInstalledGenerator  bool
	LocalBundles           bool
	Clean                  bool
	CleanCache             bool
	DropLoadSymbols        []string
}

// Resolve validates opts and produces the RunConfig for a run.
func Resolve(opts Options, catalog *Catalog) (RunConfig, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	name := opts.Sample
	if name == "" {
		name = DefaultSample
	}
	sample, err := catalog.Lookup(name)
	if err != nil {
		return RunConfig{}, err
	}

	if opts.RepoRoot == "" {
		return RunConfig{}, fmt.Errorf("repository root is required")
	}
	root, err := filepath.Abs(opts.RepoRoot)
	if err != nil {
		return RunConfig{}, fmt.Errorf("resolving repository root: %w", err)
	}

	cfg := RunConfig{
		RepoRoot:               root,
		SandboxRoot:            opts.SandboxRoot,
		Sample:                 sample,
		Mode:                   ModeSandboxed,
		BuildTarget:            opts.BuildTarget,
		TestTarget:             opts.TestTarget,
		BranchName:             strings.TrimSpace(opts.BranchName),
		SkipBuild:              opts.SkipBuild,
		MultiPlatform:          opts.MultiPlatform,
		CrossPlatforms:         opts.CrossPlatforms,
		RunTests:               opts.RunTests,
		Fetch:                  !opts.NoFetch,
		SupportedPlatformsOnly: opts.SupportedPlatformsOnly,
		Push:                   !opts.NoPush,
		KeepSandbox:            opts.KeepSandbox,
		UseInstalledGenerator:  opts.UseInstalledGenerator,
		LocalBundles:           opts.LocalBundles,
		Clean:                  opts.Clean,
		CleanCache:             opts.CleanCache,
		DropLoadSymbols:        append([]string(nil), opts.DropLoadSymbols...),
	}
	if opts.InPlace {
		cfg.Mode = ModeInPlace
	}
	if cfg.BuildTarget == "" {
		cfg.BuildTarget = sample.DefaultTarget
	}
	if cfg.TestTarget == "" {
		cfg.TestTarget = DefaultTestTarget
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks flag combinations.
func (c RunConfig) Validate() error {
	if c.SkipBuild && (c.MultiPlatform || c.RunTests) {
		return fmt.Errorf("%w: --skip-build cannot be combined with --multi-platform or --test", ErrIncompatibleFlags)
	}
	if c.CrossPlatforms && !c.MultiPlatform {
		return fmt.Errorf("%w: --cross requires --multi-platform", ErrIncompatibleFlags)
	}
	if c.BranchName != "" && c.Mode != ModeInPlace {
		return fmt.Errorf("%w: --inplace-branch only applies to --inplace runs", ErrIncompatibleFlags)
	}
	if c.KeepSandbox && c.Mode == ModeInPlace {
		return fmt.Errorf("%w: --keep-temp only applies to sandboxed runs", ErrIncompatibleFlags)
	}
	if c.LocalBundles && c.UseInstalledGenerator {
		return fmt.Errorf("%w: --local-bundles cannot be combined with --origin", ErrIncompatibleFlags)
	}
	if c.CleanCache && !c.Clean {
		return fmt.Errorf("%w: --clean-cache requires --clean-buck2", ErrIncompatibleFlags)
	}
	if c.Mode != ModeInPlace && c.Mode != ModeSandboxed {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	return nil
}

// InPlace reports whether the run mutates the sample directory directly.
func (c RunConfig) InPlace() bool {
	return c.Mode == ModeInPlace
}

// SampleDir is the absolute path of the selected sample.
func (c RunConfig) SampleDir() string {
	return filepath.Join(c.RepoRoot, c.Sample.Dir)
}

// GeneratorManifest is the cargo-buckal manifest used when building the
// generator from source.
func (c RunConfig) GeneratorManifest() string {
	return filepath.Join(c.RepoRoot, filepath.FromSlash(GeneratorManifestPath))
}

// BundleSource is the directory of locally developed bundles.
func (c RunConfig) BundleSource() string {
	return filepath.Join(c.RepoRoot, LocalBundlesDir)
}

// CargoTargetDir isolates the generator's build cache from other builds.
func (c RunConfig) CargoTargetDir() string {
	return filepath.Join(c.RepoRoot, "target", "buckal-py")
}

// FindRepoRoot returns the nearest directory at or above start that holds
// the generator manifest, or start itself.
func FindRepoRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(GeneratorManifestPath))); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}
