// Package pipeline runs the ordered generate/patch/build steps of a harness
// run against a provisioned workspace.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/buck2hub/buckal-harness/internal/config"
	"github.com/buck2hub/buckal-harness/internal/daemon"
	"github.com/buck2hub/buckal-harness/internal/envbuild"
	"github.com/buck2hub/buckal-harness/internal/logger"
	"github.com/buck2hub/buckal-harness/internal/patch"
	"github.com/buck2hub/buckal-harness/internal/shell"
)

// StepName identifies a pipeline step
type StepName string

const (
	StepClean         StepName = "clean"
	StepInit          StepName = "init"
	StepScaffold      StepName = "remove-scaffolding"
	StepGenerate      StepName = "generate"
	StepFetch         StepName = "fetch"
	StepPatch         StepName = "patch"
	StepBuild         StepName = "build"
	StepMultiPlatform StepName = "multi-platform"
	StepTest          StepName = "test"
)

// Result represents the outcome of one step
type Result struct {
	Step     StepName
	Passed   bool
	Skipped  bool
	Duration time.Duration

	// Outcomes lists the patches applied by the patch step
	Outcomes []patch.Outcome

	Error error
}

// StepError is returned by RunAll for the step that aborted the pipeline.
type StepError struct {
	Step StepName
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// DaemonGuard probes the build daemon before build tool invocations.
type DaemonGuard interface {
	Ensure(ctx context.Context, dir string) daemon.Health
}

// Config holds pipeline runner configuration
type Config struct {
	// Run is the resolved run configuration
	Run config.RunConfig

	// Workspace is the directory every step operates in
	Workspace string

	// Platforms is the resolved multi-platform matrix
	Platforms []string

	Env     envbuild.Environment
	Runner  shell.Runner
	Daemon  DaemonGuard
	Console *logger.Console
}

// Runner executes the pipeline steps in order
type Runner struct {
	cfg     Config
	console *logger.Console
}

// NewRunner creates a new pipeline runner
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("workspace is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("command runner is required")
	}
	if cfg.Run.MultiPlatform && !cfg.Run.SkipBuild && len(cfg.Platforms) == 0 {
		return nil, fmt.Errorf("multi-platform build requested without platforms")
	}
	if cfg.Daemon == nil {
		cfg.Daemon = &daemon.Guard{Runner: cfg.Runner, Env: cfg.Env, Console: cfg.Console}
	}
	console := cfg.Console
	if console == nil {
		console = logger.Discard()
	}
	return &Runner{cfg: cfg, console: console}, nil
}

type step struct {
	name    StepName
	enabled bool
	run     func(ctx context.Context, result *Result) error
}

func (r *Runner) steps() []step {
	run := r.cfg.Run
	return []step{
		{StepClean, run.Clean, r.clean},
		{StepInit, true, r.initialize},
		{StepScaffold, true, r.removeScaffolding},
		{StepGenerate, true, r.generate},
		{StepFetch, run.Fetch, r.fetch},
		{StepPatch, true, r.patch},
		{StepBuild, !run.SkipBuild, r.build},
		{StepMultiPlatform, !run.SkipBuild && run.MultiPlatform, r.multiPlatform},
		{StepTest, !run.SkipBuild && run.RunTests, r.test},
	}
}

// Plan returns the names of the steps RunAll will execute.
func (r *Runner) Plan() []StepName {
	var names []StepName
	for _, s := range r.steps() {
		if s.enabled {
			names = append(names, s.name)
		}
	}
	return names
}

// RunAll executes the steps in order and stops at the first failure,
// which is returned as *StepError. Disabled steps are reported as skipped.
func (r *Runner) RunAll(ctx context.Context) ([]*Result, error) {
	log := logger.WithComponent("pipeline")
	var results []*Result

	for _, s := range r.steps() {
		result := &Result{Step: s.name}
		results = append(results, result)
		if !s.enabled {
			result.Skipped = true
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Error = err
			return results, &StepError{Step: s.name, Err: err}
		}

		start := time.Now()
		err := s.run(ctx, result)
		result.Duration = time.Since(start)
		log.Debug("step finished", "step", s.name, "duration", result.Duration, "error", err)

		if err != nil {
			result.Error = err
			return results, &StepError{Step: s.name, Err: err}
		}
		result.Passed = true
	}
	return results, nil
}

// Summary renders results one line per step.
func Summary(results []*Result) string {
	var sb strings.Builder
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Fprintf(&sb, "  - %-16s skipped\n", r.Step)
		case r.Passed:
			fmt.Fprintf(&sb, "  ✓ %-16s %s\n", r.Step, r.Duration.Round(time.Millisecond))
		default:
			fmt.Fprintf(&sb, "  ✗ %-16s %v\n", r.Step, r.Error)
		}
	}
	return sb.String()
}

func (r *Runner) command(name string, args ...string) shell.Command {
	return shell.Command{
		Name: name,
		Args: args,
		Dir:  r.cfg.Workspace,
		Env:  r.cfg.Env.Environ(),
	}
}
