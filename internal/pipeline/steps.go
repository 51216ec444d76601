package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"

	"github.com/buck2hub/buckal-harness/internal/config"
	"github.com/buck2hub/buckal-harness/internal/patch"
)

// GeneratedFiles are removed by the clean step.
var GeneratedFiles = []string{"buckal.snap", ".buckconfig", ".buckroot", "BUCK"}

// GeneratedDirs are removed by the clean step.
var GeneratedDirs = []string{"third-party", "toolchains", "platforms"}

// ScaffoldDirs are created by `buck2 init` and replaced by the bundle's
// toolchains and platforms.
var ScaffoldDirs = []string{"toolchains", "platforms"}

// CacheDirs are additionally removed when the cache is not retained.
var CacheDirs = []string{"buck-out", config.DefaultBundleCell}

func (r *Runner) path(name string) string {
	return filepath.Join(r.cfg.Workspace, name)
}

func (r *Runner) clean(ctx context.Context, _ *Result) error {
	r.console.Printf("Cleaning existing Buck2/Buckal files...")
	for _, name := range GeneratedFiles {
		if err := os.Remove(r.path(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	dirs := GeneratedDirs
	if r.cfg.Run.CleanCache {
		dirs = append(append([]string(nil), dirs...), CacheDirs...)
	}
	for _, name := range dirs {
		if err := os.RemoveAll(r.path(name)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

func (r *Runner) initialize(ctx context.Context, result *Result) error {
	if _, err := os.Stat(r.path(".buckconfig")); err == nil {
		result.Skipped = true
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat .buckconfig: %w", err)
	}
	return r.cfg.Runner.Run(ctx, r.command("buck2", "init"))
}

func (r *Runner) removeScaffolding(ctx context.Context, _ *Result) error {
	for _, name := range ScaffoldDirs {
		if err := os.RemoveAll(r.path(name)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

// generatorArgs returns the command for a generator subcommand, either the
// installed cargo subcommand or the generator built from source.
func (r *Runner) generatorArgs(args ...string) (string, []string) {
	if r.cfg.Run.UseInstalledGenerator {
		return "cargo", append([]string{"buckal"}, args...)
	}
	full := []string{"run", "--quiet", "--manifest-path", r.cfg.Run.GeneratorManifest(), "--", "buckal"}
	return "cargo", append(full, args...)
}

func (r *Runner) generate(ctx context.Context, _ *Result) error {
	args := []string{"migrate", "--buck2"}
	if r.cfg.Run.SupportedPlatformsOnly {
		args = append(args, "--supported-platform-only")
	}
	name, full := r.generatorArgs(args...)
	return r.cfg.Runner.Run(ctx, r.command(name, full...))
}

func (r *Runner) fetch(ctx context.Context, _ *Result) error {
	name, full := r.generatorArgs("migrate", "--fetch")
	return r.cfg.Runner.Run(ctx, r.command(name, full...))
}

func (r *Runner) patch(ctx context.Context, result *Result) error {
	record := func(out patch.Outcome, err error) error {
		result.Outcomes = append(result.Outcomes, out)
		r.report(out)
		if err != nil {
			return err
		}
		if out.Failed() {
			return fmt.Errorf("%s: %s", out.Name, out.Detail)
		}
		return nil
	}

	if r.cfg.Run.LocalBundles {
		if err := r.vendorLocalBundles(); err != nil {
			return err
		}
		if err := record(patch.RewriteCells(r.path(".buckconfig"), config.DefaultBundleCell)); err != nil {
			return err
		}
	}

	compat := r.cfg.Run.Sample.Compat
	if compat.OpenSSLI686 {
		if err := record(patch.PatchOpenSSLI686(r.cfg.Workspace)); err != nil {
			return err
		}
	}
	if compat.NeedsCrossToml() {
		if err := record(patch.EnsureCrossToml(r.cfg.Workspace, compat.CrossPackagesWithArch, compat.CrossPackages)); err != nil {
			return err
		}
	}

	for _, symbol := range r.cfg.Run.DropLoadSymbols {
		if err := record(patch.DropLoadSymbol(r.path("BUCK"), config.DefaultRulesBzl, symbol)); err != nil {
			return err
		}
	}
	return nil
}

// vendorLocalBundles replaces the workspace bundle cell with the bundles
// developed in the repository.
func (r *Runner) vendorLocalBundles() error {
	src := r.cfg.Run.BundleSource()
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("local bundles not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("local bundles path %s is not a directory", src)
	}
	dst := r.path(config.DefaultBundleCell)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dst, err)
	}
	if err := copy.Copy(src, dst); err != nil {
		return fmt.Errorf("failed to copy local bundles: %w", err)
	}
	r.console.Info("vendored local bundles from %s", src)
	return nil
}

func (r *Runner) report(out patch.Outcome) {
	switch {
	case out.Status == patch.StatusApplied:
		r.console.OK("%s: %s", out.Name, out.Detail)
	case out.Warning || out.Failed():
		r.console.Warn("%s: %s (%s)", out.Name, out.Detail, out.Path)
	default:
		r.console.Info("%s: %s", out.Name, out.Detail)
	}
}

func (r *Runner) build(ctx context.Context, _ *Result) error {
	r.cfg.Daemon.Ensure(ctx, r.cfg.Workspace)
	if err := r.cfg.Runner.Run(ctx, r.command("buck2", "build", r.cfg.Run.BuildTarget)); err != nil {
		return err
	}
	r.console.OK("Buck2 build finished")
	return nil
}

func (r *Runner) multiPlatform(ctx context.Context, _ *Result) error {
	r.cfg.Daemon.Ensure(ctx, r.cfg.Workspace)
	for _, platform := range r.cfg.Platforms {
		if err := r.cfg.Runner.Run(ctx, r.command("buck2", "build", r.cfg.Run.BuildTarget, "--target-platforms", platform)); err != nil {
			return err
		}
	}
	r.console.OK("Buck2 multi-platform builds finished")
	return nil
}

func (r *Runner) test(ctx context.Context, _ *Result) error {
	r.cfg.Daemon.Ensure(ctx, r.cfg.Workspace)
	if err := r.cfg.Runner.Run(ctx, r.command("buck2", "test", r.cfg.Run.TestTarget)); err != nil {
		return err
	}
	r.console.OK("Buck2 tests finished")
	return nil
}
