package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/buck2hub/buckal-harness/internal/config"
	"github.com/buck2hub/buckal-harness/internal/envbuild"
	"github.com/buck2hub/buckal-harness/internal/git"
	"github.com/buck2hub/buckal-harness/internal/harness"
	"github.com/buck2hub/buckal-harness/internal/logger"
	"github.com/buck2hub/buckal-harness/internal/pipeline"
	"github.com/buck2hub/buckal-harness/internal/platform"
	"github.com/buck2hub/buckal-harness/internal/shell"
	"github.com/buck2hub/buckal-harness/internal/toolcheck"
)

func init() {
	registerRunFlags(rootCmd)
}

func registerRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("target", config.DefaultSample, "sample to use")
	flags.Bool("inplace", false, "run directly in the sample directory instead of copying to a temp dir")
	flags.Bool("keep-temp", false, "keep the temporary workspace when not running inplace")
	flags.String("buck2-target", "", "Buck2 target to build (default: depends on sample)")
	flags.Bool("skip-build", false, "only generate Buck2 files; skip buck2 build/test steps")
	flags.Bool("multi-platform", false, "also build for additional target platforms")
	flags.Bool("cross", false, "with --multi-platform, use the cross-compilation platform variants")
	flags.String("host-group", "", "override the detected host OS group (linux, macos, windows)")
	flags.Bool("test", false, "after a successful build, run buck2 test")
	flags.String("buck2-test-target", config.DefaultTestTarget, "buck2 test target to run when --test is set")
	flags.Bool("no-fetch", false, "skip fetching latest buckal bundles")
	flags.Bool("supported-platform-only", false, "only generate BUCK files for supported platforms")
	flags.String("inplace-branch", "", "branch name to create when running --inplace (default buckal-test-<timestamp>)")
	flags.Bool("no-push", false, "when running --inplace, skip committing/pushing changes")
	flags.Bool("origin", false, "use the installed cargo-buckal instead of building it from source")
	flags.Bool("local-bundles", false, "vendor <repo>/buckal-bundles into the workspace and point the bundle cell at it")
	flags.Bool("clean-buck2", false, "clean existing Buck2/Buckal files before generating")
	flags.Bool("clean-cache", false, "with --clean-buck2, also remove buck-out and the bundle cache")
	flags.StringSlice("drop-load-symbol", nil, "rule name to remove from the root BUCK load statement (repeatable)")

	flags.String("repo-root", "", "harness repository root (default: nearest parent holding cargo-buckal, or $BUCKAL_REPO_ROOT)")
	flags.String("sandbox-root", "", "parent directory for temporary workspaces (default: system temp, or $BUCKAL_SANDBOX_ROOT)")
	flags.String("config", "", "sample catalog override file (default <repo-root>/"+config.DefaultCatalogFile+")")
	flags.String("python", "python3", "interpreter cargo-buckal links against")
	flags.Bool("verbose", false, "write debug logs to stderr")
	flags.String("log-dir", "", "directory for the rotating run log")
}

func optionsFromFlags(cmd *cobra.Command) config.Options {
	flags := cmd.Flags()
	var opts config.Options
	opts.Sample, _ = flags.GetString("target")
	opts.InPlace, _ = flags.GetBool("inplace")
	opts.KeepSandbox, _ = flags.GetBool("keep-temp")
	opts.BuildTarget, _ = flags.GetString("buck2-target")
	opts.SkipBuild, _ = flags.GetBool("skip-build")
	opts.MultiPlatform, _ = flags.GetBool("multi-platform")
	opts.CrossPlatforms, _ = flags.GetBool("cross")
	opts.RunTests, _ = flags.GetBool("test")
	opts.TestTarget, _ = flags.GetString("buck2-test-target")
	opts.NoFetch, _ = flags.GetBool("no-fetch")
	opts.SupportedPlatformsOnly, _ = flags.GetBool("supported-platform-only")
	opts.BranchName, _ = flags.GetString("inplace-branch")
	opts.NoPush, _ = flags.GetBool("no-push")
	opts.UseInstalledGenerator, _ = flags.GetBool("origin")
	opts.LocalBundles, _ = flags.GetBool("local-bundles")
	opts.Clean, _ = flags.GetBool("clean-buck2")
	opts.CleanCache, _ = flags.GetBool("clean-cache")
	opts.DropLoadSymbols, _ = flags.GetStringSlice("drop-load-symbol")
	opts.RepoRoot, _ = flags.GetString("repo-root")
	opts.SandboxRoot, _ = flags.GetString("sandbox-root")
	return opts
}

func runHarness(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, cmd); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, cmd *cobra.Command) error {
	flags := cmd.Flags()
	verbose, _ := flags.GetBool("verbose")
	logDir, _ := flags.GetString("log-dir")
	runID := uuid.New().String()
	if err := logger.Init(logger.Config{LogDir: logDir, Verbose: verbose, RunID: runID}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	console := logger.NewConsole(os.Stdout)

	base := startupEnv
	environ := base.Environ()

	opts := optionsFromFlags(cmd)
	if err := config.ApplyEnv(&opts, base.Get); err != nil {
		return err
	}
	if opts.RepoRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		opts.RepoRoot = config.FindRepoRoot(cwd)
	}

	catalogPath, _ := flags.GetString("config")
	if catalogPath == "" {
		catalogPath = filepath.Join(opts.RepoRoot, config.DefaultCatalogFile)
	}
	catalog, err := config.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(opts, catalog)
	if err != nil {
		if errors.Is(err, config.ErrUnknownSample) {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(catalog.Names(), ", "))
		}
		return err
	}

	runner := &shell.Exec{Echo: func(c shell.Command) { console.Command(c.String(), c.Dir) }}
	checker := &toolcheck.Checker{Runner: runner, Env: environ, Console: console}
	if err := checker.Ensure(ctx, toolcheck.Required()...); err != nil {
		return err
	}

	python, _ := flags.GetString("python")
	info, err := envbuild.SysconfigProbe{Runner: runner, Interpreter: python, Env: environ}.Probe(ctx)
	if err != nil {
		return err
	}
	env := envbuild.Build(base, envbuild.Options{
		Python:         info,
		CargoTargetDir: cfg.CargoTargetDir(),
		GOOS:           runtime.GOOS,
	})

	hostGroup, err := hostGroupFromFlags(cmd)
	if err != nil {
		return err
	}

	deps := harness.Deps{
		Runner:    runner,
		Env:       env,
		Console:   console,
		HostGroup: hostGroup,
	}
	if cfg.Sample.Git {
		gitOps, err := git.NewGit(ctx, git.Config{Env: env.Environ(), Echo: console.Command})
		if err != nil {
			return fmt.Errorf("failed to initialize git: %w", err)
		}
		deps.Git = gitOps
	}

	logger.WithComponent("cli").Info("run starting", "sample", cfg.Sample.Name, "mode", cfg.Mode, "repo_root", cfg.RepoRoot)
	report, err := harness.Run(ctx, deps, cfg)
	if report != nil && len(report.Results) > 0 {
		fmt.Println()
		fmt.Print(pipeline.Summary(report.Results))
	}
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s buckal test for %s completed successfully\n", green("✓"), cfg.Sample.Name)
	if report.Publish.Pushed {
		fmt.Printf("Published %s as %q\n", report.Repository.WorkingBranch, report.Publish.Message)
	}
	return nil
}

func hostGroupFromFlags(cmd *cobra.Command) (platform.HostGroup, error) {
	name, _ := cmd.Flags().GetString("host-group")
	if name != "" {
		return platform.ParseHostGroup(name)
	}
	// An undetected group only matters for --multi-platform, where the
	// harness reports it.
	group, _ := platform.DetectHostGroup(runtime.GOOS)
	return group, nil
}
