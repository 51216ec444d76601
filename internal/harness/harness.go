// Package harness drives one end-to-end run: it prepares the sample's
// branch state, provisions the workspace, runs the pipeline and publishes
// the result.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/buck2hub/buckal-harness/internal/branch"
	"github.com/buck2hub/buckal-harness/internal/config"
	"github.com/buck2hub/buckal-harness/internal/envbuild"
	"github.com/buck2hub/buckal-harness/internal/git"
	"github.com/buck2hub/buckal-harness/internal/logger"
	"github.com/buck2hub/buckal-harness/internal/pipeline"
	"github.com/buck2hub/buckal-harness/internal/platform"
	"github.com/buck2hub/buckal-harness/internal/sandbox"
	"github.com/buck2hub/buckal-harness/internal/shell"
)

var (
	// ErrMissingSample is returned when the sample directory does not exist.
	ErrMissingSample = errors.New("missing sample workspace")

	// ErrMissingGenerator is returned when the generator manifest needed to
	// build the generator from source does not exist.
	ErrMissingGenerator = errors.New("missing cargo-buckal manifest")
)

// Deps are the collaborators of a run.
type Deps struct {
	Runner shell.Runner

	// Git performs version control on git samples; may be nil otherwise
	Git git.GitOperations

	Env     envbuild.Environment
	Console *logger.Console

	// HostGroup selects the multi-platform matrix
	HostGroup platform.HostGroup

	// Daemon overrides the default daemon guard
	Daemon pipeline.DaemonGuard

	// Clock stamps branch names and commit messages; defaults to time.Now
	Clock func() time.Time
}

// Report summarizes a run.
type Report struct {
	Workspace  string
	Sandboxed  bool
	Repository *branch.RepositoryState
	Results    []*pipeline.Result
	Publish    branch.PublishResult
}

// Run executes one harness run. Preconditions are checked before anything
// is mutated. The workspace is cleaned up on every exit path; cleanup
// failures are reported but never replace the run's error.
func Run(ctx context.Context, deps Deps, cfg config.RunConfig) (report *Report, err error) {
	log := logger.WithComponent("harness")
	console := deps.Console
	if console == nil {
		console = logger.Discard()
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("command runner is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sampleDir := cfg.SampleDir()
	if info, err := os.Stat(sampleDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w at %s", ErrMissingSample, sampleDir)
	}
	if !cfg.UseInstalledGenerator {
		if _, err := os.Stat(cfg.GeneratorManifest()); err != nil {
			return nil, fmt.Errorf("%w at %s", ErrMissingGenerator, cfg.GeneratorManifest())
		}
	}

	var platforms []string
	if cfg.MultiPlatform && !cfg.SkipBuild {
		platforms, err = platform.Targets(deps.HostGroup, cfg.CrossPlatforms)
		if err != nil {
			return nil, err
		}
		console.Info("Detected host OS group: %s", deps.HostGroup)
	}

	manager, err := branch.NewManager(branch.Config{Git: deps.Git, Clock: deps.Clock, Console: console})
	if err != nil {
		return nil, err
	}
	state, err := manager.Prepare(ctx, branch.PrepareOptions{
		RepoPath:   sampleDir,
		Git:        cfg.Sample.Git,
		BaseBranch: cfg.Sample.BaseBranch,
		InPlace:    cfg.InPlace(),
		BranchName: cfg.BranchName,
	})
	if err != nil {
		return nil, err
	}

	ws, err := sandbox.Provision(sandbox.Config{
		SampleDir:  sampleDir,
		SampleName: cfg.Sample.Name,
		InPlace:    cfg.InPlace(),
		Root:       cfg.SandboxRoot,
		Keep:       cfg.KeepSandbox,
	})
	if err != nil {
		if rerr := manager.RestoreOriginal(ctx, state); rerr != nil {
			console.Warn("failed to restore original branch: %v", rerr)
			log.Warn("branch restore failed", "repo", sampleDir, "error", rerr)
		}
		return nil, err
	}
	defer func() {
		if !ws.Sandboxed() {
			return
		}
		if cerr := ws.Cleanup(); cerr != nil {
			console.Warn("failed to remove temporary workspace: %v", cerr)
			log.Warn("workspace cleanup failed", "root", ws.Root, "error", cerr)
			return
		}
		if ws.Status == sandbox.StatusKept {
			console.Printf("Kept temporary workspace %s", ws.Path)
		} else {
			console.Printf("Removed temporary workspace %s", ws.Root)
		}
	}()

	report = &Report{Workspace: ws.Path, Sandboxed: ws.Sandboxed(), Repository: state}
	if ws.Sandboxed() {
		console.Printf("Copied sample workspace to %s", ws.Path)
		if err := manager.RestoreOriginal(ctx, state); err != nil {
			return report, err
		}
	} else {
		console.Printf("Running in-place in %s", ws.Path)
	}

	runner, err := pipeline.NewRunner(pipeline.Config{
		Run:       cfg,
		Workspace: ws.Path,
		Platforms: platforms,
		Env:       deps.Env,
		Runner:    deps.Runner,
		Daemon:    deps.Daemon,
		Console:   console,
	})
	if err != nil {
		return report, err
	}
	log.Info("pipeline starting", "sample", cfg.Sample.Name, "mode", cfg.Mode, "workspace", ws.Path, "steps", runner.Plan())

	report.Results, err = runner.RunAll(ctx)
	if err != nil {
		log.Error("pipeline failed", "error", err)
		return report, err
	}

	report.Publish, err = manager.Publish(ctx, state, branch.PublishOptions{
		InPlace:    cfg.InPlace(),
		Push:       cfg.Push,
		PublishRef: cfg.Sample.PublishRef,
	})
	if err != nil {
		return report, err
	}
	log.Info("run finished", "sample", cfg.Sample.Name, "published", report.Publish.Pushed)
	return report, nil
}
