package git

import (
	"context"
)

// GitOperations provides the git operations the branch lifecycle needs.
// This interface is designed to be implementation-agnostic,
// allowing for testing with mock implementations.
type GitOperations interface {
	// IsInsideWorkTree reports whether repoPath is inside a git work tree.
	// A directory that is not a repository yields false without error.
	IsInsideWorkTree(ctx context.Context, repoPath string) (bool, error)

	// HasUncommittedChanges checks if there are uncommitted changes in the repository.
	// Returns true if there are staged, unstaged or untracked changes.
	HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error)

	// GetStatus returns detailed git status information.
	GetStatus(ctx context.Context, repoPath string) (*Status, error)

	// CurrentBranch returns the short name of the checked out branch.
	CurrentBranch(ctx context.Context, repoPath string) (string, error)

	// BranchExists reports whether refs/heads/<branch> exists.
	BranchExists(ctx context.Context, repoPath, branch string) (bool, error)

	// Checkout switches to an existing branch.
	Checkout(ctx context.Context, repoPath, branch string) error

	// CreateBranch creates branch at HEAD and switches to it.
	CreateBranch(ctx context.Context, repoPath, branch string) error

	// CommitChanges creates a commit with the given message.
	// Returns the commit hash if successful.
	CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error)

	// Push publishes HEAD to a remote ref.
	Push(ctx context.Context, repoPath string, opts PushOptions) error
}

// Status represents the git status of a repository.
type Status struct {
	// Modified files (staged or unstaged)
	Modified []string

	// Untracked files
	Untracked []string

	// Deleted files
	Deleted []string

	// Added files (staged)
	Added []string

	// Renamed files
	Renamed []string

	// HasChanges is true if any changes exist
	HasChanges bool
}

// CommitOptions configures a git commit operation.
type CommitOptions struct {
	// Message is the commit message
	Message string

	// Author specifies the author (optional, uses git config if empty)
	Author string

	// AddAll stages all changes before committing (git add -A)
	AddAll bool

	// AllowEmpty allows creating an empty commit
	AllowEmpty bool
}

// PushOptions configures a git push operation.
type PushOptions struct {
	// Remote is the remote name; defaults to "origin"
	Remote string

	// Refspec is what to push, e.g. "HEAD:main"
	Refspec string

	// ForceWithLease rewrites the remote ref only if it still matches our
	// remote-tracking ref, refusing to clobber concurrent updates
	ForceWithLease bool
}
