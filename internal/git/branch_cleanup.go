package git

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StaleBranch is a harness working branch left behind by an earlier run.
type StaleBranch struct {
	Name      string
	Timestamp time.Time
	Age       time.Duration
}

// ListBranches returns local branch names matching pattern (a
// refs/heads-relative glob such as "buckal-test-*").
func (g *Git) ListBranches(ctx context.Context, repoPath, pattern string) ([]string, error) {
	output, err := g.command(ctx, repoPath, "for-each-ref", "--format=%(refname:short)", "refs/heads/"+pattern).Output()
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref failed in %s: %w", repoPath, err)
	}

	var branches []string
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			branches = append(branches, name)
		}
	}
	return branches, scanner.Err()
}

// BranchTimestamp returns the committer time of the branch tip.
func (g *Git) BranchTimestamp(ctx context.Context, repoPath, branch string) (time.Time, error) {
	output, err := g.command(ctx, repoPath, "log", "-1", "--format=%ct", "refs/heads/"+branch).Output()
	if err != nil {
		return time.Time{}, fmt.Errorf("git log failed for %s in %s: %w", branch, repoPath, err)
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(string(output)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected timestamp for %s: %w", branch, err)
	}
	return time.Unix(secs, 0), nil
}

// DeleteBranch force-deletes a local branch.
func (g *Git) DeleteBranch(ctx context.Context, repoPath, branch string) error {
	output, err := g.command(ctx, repoPath, "branch", "-D", branch).CombinedOutput()
	if err != nil {
		return fmt.Errorf("git branch -D %s failed in %s: %w (output: %s)", branch, repoPath, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// FindStaleBranches lists branches matching pattern other than the one
// currently checked out, with their age relative to now.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) FindStaleBranches(ctx context.Context, repoPath, pattern string, now time.Time) ([]StaleBranch, error) {
	branches, err := g.ListBranches(ctx, repoPath, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	current, err := g.CurrentBranch(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	var stale []StaleBranch
	for _, branch := range branches {
		if branch == current {
			continue
		}
		timestamp, err := g.BranchTimestamp(ctx, repoPath, branch)
		if err != nil {
			// Skip branches we can't get timestamps for
			continue
		}
		stale = append(stale, StaleBranch{
			Name:      branch,
			Timestamp: timestamp,
			Age:       now.Sub(timestamp),
		})
	}
	return stale, nil
}

// CleanupStaleBranches deletes branches from FindStaleBranches older than
// retention. With dryRun nothing is deleted. It returns the branches that
// were (or would be) deleted; individual delete failures are collected in
// the returned error slice and do not stop the sweep.
func (g *Git) CleanupStaleBranches(ctx context.Context, repoPath, pattern string, retention time.Duration, now time.Time, dryRun bool) ([]StaleBranch, []error, error) {
	stale, err := g.FindStaleBranches(ctx, repoPath, pattern, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find stale branches: %w", err)
	}

	var deleted []StaleBranch
	var failures []error
	for _, branch := range stale {
		if branch.Age < retention {
			// Branch is too recent to delete
			continue
		}
		if !dryRun {
			if err := g.DeleteBranch(ctx, repoPath, branch.Name); err != nil {
				failures = append(failures, err)
				continue
			}
		}
		deleted = append(deleted, branch)
	}
	return deleted, failures, nil
}

// SummarizeStaleBranches groups branches by age for display.
func SummarizeStaleBranches(stale []StaleBranch) string {
	if len(stale) == 0 {
		return "No stale harness branches found.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d stale harness branch(es):\n\n", len(stale))

	// Group by age
	var recent, old, veryOld []StaleBranch
	for _, branch := range stale {
		days := branch.Age.Hours() / 24
		switch {
		case days < 7:
			recent = append(recent, branch)
		case days < 30:
			old = append(old, branch)
		default:
			veryOld = append(veryOld, branch)
		}
	}

	groups := []struct {
		title    string
		branches []StaleBranch
	}{
		{"Recent (< 7 days):", recent},
		{"Old (7-30 days):", old},
		{"Very Old (> 30 days):", veryOld},
	}
	for _, group := range groups {
		if len(group.branches) == 0 {
			continue
		}
		sb.WriteString(group.title + "\n")
		for _, b := range group.branches {
			fmt.Fprintf(&sb, "  - %s (%.1f days old)\n", b.Name, b.Age.Hours()/24)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
