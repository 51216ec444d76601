// Package branch owns the sample repository's branch pointer for the
// duration of a run. It is the only package allowed to mutate version
// control: it puts the repository on its baseline, isolates in-place runs on
// a fresh working branch and publishes the result once the pipeline passes.
// It also sweeps working branches left behind by earlier runs.
package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/buck2hub/buckal-harness/internal/git"
	"github.com/buck2hub/buckal-harness/internal/logger"
)

var (
	// ErrDirtyRepository is returned when the sample has uncommitted changes.
	ErrDirtyRepository = errors.New("repository has uncommitted changes")

	// ErrBranchExists is returned when an explicitly requested working
	// branch is already present.
	ErrBranchExists = errors.New("branch already exists")

	// ErrBranchNamesExhausted is returned when no free generated name was
	// found within MaxBranchAttempts.
	ErrBranchNamesExhausted = errors.New("no free branch name")
)

const (
	// BranchPrefix starts every generated working branch name.
	BranchPrefix = "buckal-test-"

	// TimestampLayout formats branch names and commit messages.
	TimestampLayout = "20060102-150405"

	// MaxBranchAttempts bounds the search for a free generated name.
	MaxBranchAttempts = 100

	// CommitPrefix starts the message of publish commits.
	CommitPrefix = "buckal migrate update"
)

// RepositoryState records what the manager did to the repository.
type RepositoryState struct {
	// RepoPath is the sample repository
	RepoPath string

	// Managed is false for samples without version control; every other
	// operation is then a no-op
	Managed bool

	// BaseBranch is the baseline checked out before the run
	BaseBranch string

	// OriginalBranch is the branch the repository was on before the run
	OriginalBranch string

	// WorkingBranch is the isolated branch of an in-place run, or empty
	WorkingBranch string
}

// PrepareOptions configures Prepare.
type PrepareOptions struct {
	RepoPath string

	// Git marks samples that support version-control operations
	Git bool

	BaseBranch string

	// InPlace requests a working branch
	InPlace bool

	// BranchName is an explicit working branch name; empty generates one
	BranchName string
}

// PublishOptions configures Publish.
type PublishOptions struct {
	// InPlace must be set for anything to be published
	InPlace bool

	// Push is false when publishing was suppressed
	Push bool

	Remote string

	// PublishRef is the remote branch updated with the working branch
	PublishRef string
}

// PublishResult describes what Publish did.
type PublishResult struct {
	Committed  bool
	Pushed     bool
	CommitHash string
	Message    string
}

// Manager implements the branch lifecycle.
type Manager struct {
	git     git.GitOperations
	now     func() time.Time
	console *logger.Console
	log     *slog.Logger
}

// Config configures a Manager.
type Config struct {
	// Git performs version control operations; nil disables them
	Git git.GitOperations

	// Clock returns the current time; defaults to time.Now
	Clock func() time.Time

	Console *logger.Console
}

// NewManager creates a Manager. Git may be nil when only non-git samples
// are driven.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		git:     cfg.Git,
		now:     cfg.Clock,
		console: cfg.Console,
		log:     logger.WithComponent("branch"),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.console == nil {
		m.console = logger.Discard()
	}
	return m, nil
}

// Prepare ensures the repository is clean and on its baseline, and for
// in-place runs creates and switches to the working branch.
func (m *Manager) Prepare(ctx context.Context, opts PrepareOptions) (*RepositoryState, error) {
	state := &RepositoryState{RepoPath: opts.RepoPath, BaseBranch: opts.BaseBranch}

	if !opts.Git {
		m.console.Printf("Skipping git operations for %s (not a git repository)", opts.RepoPath)
		return state, nil
	}

	if m.git == nil {
		return nil, fmt.Errorf("git operations unavailable for %s", opts.RepoPath)
	}

	inside, err := m.git.IsInsideWorkTree(ctx, opts.RepoPath)
	if err != nil {
		return nil, err
	}
	if !inside {
		m.console.Warn("%s is not a git repository; skipping base checkout", opts.RepoPath)
		return state, nil
	}
	state.Managed = true

	status, err := m.git.GetStatus(ctx, opts.RepoPath)
	if err != nil {
		return nil, err
	}
	if status.HasChanges {
		return nil, fmt.Errorf("%w: repo at %s (%s); please commit or stash before running",
			ErrDirtyRepository, opts.RepoPath, describeStatus(status))
	}

	original, err := m.git.CurrentBranch(ctx, opts.RepoPath)
	if err != nil {
		return nil, err
	}
	state.OriginalBranch = original

	// The working branch name is settled before the checkout so a taken
	// explicit name leaves the repository where it was.
	var name string
	if opts.InPlace {
		if name, err = m.workingBranchName(ctx, opts); err != nil {
			return nil, err
		}
	}

	if original != opts.BaseBranch {
		if err := m.git.Checkout(ctx, opts.RepoPath, opts.BaseBranch); err != nil {
			return nil, err
		}
	}

	if !opts.InPlace {
		return state, nil
	}

	if err := m.git.CreateBranch(ctx, opts.RepoPath, name); err != nil {
		return nil, err
	}
	state.WorkingBranch = name
	m.console.Printf("Created and switched to branch %s", name)
	m.log.Info("working branch created", "branch", name, "base", opts.BaseBranch)

	return state, nil
}

func (m *Manager) workingBranchName(ctx context.Context, opts PrepareOptions) (string, error) {
	if opts.BranchName != "" {
		exists, err := m.git.BranchExists(ctx, opts.RepoPath, opts.BranchName)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("%w: in-place branch %q already exists in repo; choose another name", ErrBranchExists, opts.BranchName)
		}
		return opts.BranchName, nil
	}

	base := BranchPrefix + m.now().Format(TimestampLayout)
	return FreeName(base, func(name string) (bool, error) {
		return m.git.BranchExists(ctx, opts.RepoPath, name)
	})
}

// FreeName returns base if it is unused, otherwise base-1, base-2, ... up to
// MaxBranchAttempts candidates in total.
func FreeName(base string, exists func(name string) (bool, error)) (string, error) {
	candidate := base
	for attempt := 1; attempt <= MaxBranchAttempts; attempt++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
	return "", fmt.Errorf("%w: %d candidates starting at %s are taken", ErrBranchNamesExhausted, MaxBranchAttempts, base)
}

// RestoreOriginal switches a sandboxed run's repository back to the branch
// it was on before Prepare, once the copy has been taken.
func (m *Manager) RestoreOriginal(ctx context.Context, state *RepositoryState) error {
	if state == nil || !state.Managed || state.WorkingBranch != "" {
		return nil
	}
	if state.OriginalBranch == "" || state.OriginalBranch == state.BaseBranch {
		return nil
	}
	return m.git.Checkout(ctx, state.RepoPath, state.OriginalBranch)
}

// Publish commits whatever the run changed on the working branch and pushes
// it to the publish ref with a lease check.
func (m *Manager) Publish(ctx context.Context, state *RepositoryState, opts PublishOptions) (PublishResult, error) {
	var result PublishResult
	if state == nil || !state.Managed || !opts.InPlace || !opts.Push {
		return result, nil
	}
	if state.WorkingBranch == "" {
		m.console.Warn("repo not on a created in-place branch; skipping commit/push")
		return result, nil
	}

	dirty, err := m.git.HasUncommittedChanges(ctx, state.RepoPath)
	if err != nil {
		return result, err
	}
	if !dirty {
		m.console.Printf("No changes in repo to commit; skipping push.")
		return result, nil
	}

	result.Message = fmt.Sprintf("%s %s", CommitPrefix, m.now().Format(TimestampLayout))
	hash, err := m.git.CommitChanges(ctx, state.RepoPath, git.CommitOptions{
		Message: result.Message,
		AddAll:  true,
	})
	if err != nil {
		return result, err
	}
	result.Committed = true
	result.CommitHash = hash

	ref := opts.PublishRef
	if ref == "" {
		ref = "main"
	}
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	m.console.Printf("Committed changes, pushing to %s/%s...", remote, ref)
	if err := m.git.Push(ctx, state.RepoPath, git.PushOptions{
		Remote:         remote,
		Refspec:        "HEAD:" + ref,
		ForceWithLease: true,
	}); err != nil {
		return result, err
	}
	result.Pushed = true
	m.console.OK("Pushed changes to %s/%s", remote, ref)
	m.log.Info("published", "branch", state.WorkingBranch, "ref", ref, "commit", hash)

	return result, nil
}

// StaleBranchCleaner is the part of a git backend that sweeps old working
// branches. *git.Git implements it.
type StaleBranchCleaner interface {
	FindStaleBranches(ctx context.Context, repoPath, pattern string, now time.Time) ([]git.StaleBranch, error)
	CleanupStaleBranches(ctx context.Context, repoPath, pattern string, retention time.Duration, now time.Time, dryRun bool) ([]git.StaleBranch, []error, error)
}

// PruneOptions configures Prune.
type PruneOptions struct {
	RepoPath string

	// Retention is the minimum age of a deleted branch
	Retention time.Duration

	// DryRun reports what would be deleted without deleting
	DryRun bool
}

// PruneResult describes what Prune found and removed.
type PruneResult struct {
	// Found lists every working branch other than the checked out one
	Found []git.StaleBranch

	// Deleted lists the branches removed, or that would be with DryRun
	Deleted []git.StaleBranch

	// Failures collects individual delete errors
	Failures []error
}

// Prune deletes working branches left behind by earlier in-place runs once
// they are older than opts.Retention. The checked out branch is kept.
func (m *Manager) Prune(ctx context.Context, opts PruneOptions) (*PruneResult, error) {
	cleaner, ok := m.git.(StaleBranchCleaner)
	if !ok {
		return nil, fmt.Errorf("git operations for %s cannot prune branches", opts.RepoPath)
	}
	now := m.now()
	pattern := BranchPrefix + "*"

	found, err := cleaner.FindStaleBranches(ctx, opts.RepoPath, pattern, now)
	if err != nil {
		return nil, err
	}
	deleted, failures, err := cleaner.CleanupStaleBranches(ctx, opts.RepoPath, pattern, opts.Retention, now, opts.DryRun)
	if err != nil {
		return nil, err
	}
	m.log.Info("working branches pruned", "repo", opts.RepoPath, "found", len(found), "deleted", len(deleted), "failed", len(failures), "dry_run", opts.DryRun)
	return &PruneResult{Found: found, Deleted: deleted, Failures: failures}, nil
}

func describeStatus(s *git.Status) string {
	var parts []string
	for _, c := range []struct {
		label string
		files []string
	}{
		{"modified", s.Modified},
		{"added", s.Added},
		{"deleted", s.Deleted},
		{"renamed", s.Renamed},
		{"untracked", s.Untracked},
	} {
		if len(c.files) > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", len(c.files), c.label))
		}
	}
	if len(parts) == 0 {
		return "changes present"
	}
	return strings.Join(parts, ", ")
}
