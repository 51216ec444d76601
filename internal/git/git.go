package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Git implements GitOperations using the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string

	// env is the child environment; nil inherits the process environment
	env []string

	// echo, if set, receives every command line before it runs
	echo func(cmdline, dir string)
}

// Config configures a Git instance.
type Config struct {
	// Env is the environment passed to every git invocation
	Env []string

	// Echo is called with each git command line and its repository
	Echo func(cmdline, dir string)
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context, cfg Config) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	// Verify git works
	cmd := exec.CommandContext(ctx, gitPath, "version")
	cmd.Env = cfg.Env
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath, env: cfg.Env, echo: cfg.Echo}, nil
}

func (g *Git) command(ctx context.Context, repoPath string, args ...string) *exec.Cmd {
	if g.echo != nil {
		g.echo("git "+strings.Join(args, " "), repoPath)
	}
	cmd := exec.CommandContext(ctx, g.gitPath, append([]string{"-C", repoPath}, args...)...)
	cmd.Env = g.env
	return cmd
}

// IsInsideWorkTree reports whether repoPath is inside a git work tree.
func (g *Git) IsInsideWorkTree(ctx context.Context, repoPath string) (bool, error) {
	output, err := g.command(ctx, repoPath, "rev-parse", "--is-inside-work-tree").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// git exits 128 outside a repository
			return false, nil
		}
		return false, fmt.Errorf("git rev-parse failed in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(output)) == "true", nil
}

// HasUncommittedChanges checks if there are uncommitted changes.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error) {
	status, err := g.GetStatus(ctx, repoPath)
	if err != nil {
		return false, fmt.Errorf("failed to check uncommitted changes in %s: %w", repoPath, err)
	}
	return status.HasChanges, nil
}

// GetStatus returns the git status of the repository.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) GetStatus(ctx context.Context, repoPath string) (*Status, error) {
	// Use git status --porcelain for machine-readable output
	output, err := g.command(ctx, repoPath, "status", "--porcelain").Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w", repoPath, err)
	}
	return parseStatus(string(output))
}

func parseStatus(output string) (*Status, error) {
	status := &Status{
		Modified:  []string{},
		Untracked: []string{},
		Deleted:   []string{},
		Added:     []string{},
		Renamed:   []string{},
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}

		statusCode := line[0:2]
		filePath := line[3:]

		// Parse status codes: XY where X=index, Y=working tree
		// Reference: https://git-scm.com/docs/git-status#_short_format
		switch {
		case strings.HasPrefix(statusCode, "??"):
			status.Untracked = append(status.Untracked, filePath)
		case strings.HasPrefix(statusCode, "A "), strings.HasPrefix(statusCode, "AM"):
			status.Added = append(status.Added, filePath)
		case strings.HasPrefix(statusCode, "M "), strings.HasPrefix(statusCode, " M"), strings.HasPrefix(statusCode, "MM"):
			status.Modified = append(status.Modified, filePath)
		case strings.HasPrefix(statusCode, "D "), strings.HasPrefix(statusCode, " D"):
			status.Deleted = append(status.Deleted, filePath)
		case strings.HasPrefix(statusCode, "R "):
			status.Renamed = append(status.Renamed, filePath)
		default:
			// Other changes (copied, updated but unmerged, etc.)
			status.Modified = append(status.Modified, filePath)
		}

		status.HasChanges = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}

	return status, nil
}

// CurrentBranch returns the abbreviated name of HEAD.
func (g *Git) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	output, err := g.command(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get current branch in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// BranchExists reports whether a local branch exists.
func (g *Git) BranchExists(ctx context.Context, repoPath, branch string) (bool, error) {
	err := g.command(ctx, repoPath, "show-ref", "--verify", "--quiet", "refs/heads/"+branch).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git show-ref failed in %s: %w", repoPath, err)
}

// Checkout switches the work tree to branch.
func (g *Git) Checkout(ctx context.Context, repoPath, branch string) error {
	output, err := g.command(ctx, repoPath, "checkout", branch).CombinedOutput()
	if err != nil {
		return fmt.Errorf("git checkout %s failed in %s: %w (output: %s)", branch, repoPath, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// CreateBranch creates branch from HEAD and switches to it.
func (g *Git) CreateBranch(ctx context.Context, repoPath, branch string) error {
	output, err := g.command(ctx, repoPath, "checkout", "-b", branch).CombinedOutput()
	if err != nil {
		return fmt.Errorf("git checkout -b %s failed in %s: %w (output: %s)", branch, repoPath, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// CommitChanges creates a git commit.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	// Stage changes if requested
	if opts.AddAll {
		if err := g.command(ctx, repoPath, "add", "-A").Run(); err != nil {
			return "", fmt.Errorf("git add failed in %s: %w", repoPath, err)
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}

	if output, err := g.command(ctx, repoPath, args...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("git commit failed in %s: %w (output: %s)", repoPath, err, strings.TrimSpace(string(output)))
	}

	// Get the commit hash
	hashOutput, err := g.command(ctx, repoPath, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash in %s: %w", repoPath, err)
	}

	return strings.TrimSpace(string(hashOutput)), nil
}

// Push publishes to a remote.
func (g *Git) Push(ctx context.Context, repoPath string, opts PushOptions) error {
	if opts.Refspec == "" {
		return fmt.Errorf("push refspec is required")
	}
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}

	args := []string{"push"}
	if opts.ForceWithLease {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, opts.Refspec)

	output, err := g.command(ctx, repoPath, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("git push %s %s failed in %s: %w (output: %s)", remote, opts.Refspec, repoPath, err, strings.TrimSpace(string(output)))
	}
	return nil
}
