package git

import (
	"context"
	"strings"
	"testing"
	"time"
)

// TestFindStaleBranches tests the stale harness branch detection logic
func TestFindStaleBranches(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)

	runGit(t, repo, "branch", "buckal-test-20240101-000000")
	runGit(t, repo, "branch", "buckal-test-20240102-000000")
	runGit(t, repo, "branch", "feature/test")

	gitOps, err := NewGit(ctx, Config{})
	if err != nil {
		t.Fatalf("failed to create git ops: %v", err)
	}

	branches, err := gitOps.ListBranches(ctx, repo, "buckal-test-*")
	if err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	if len(branches) != 2 {
		t.Fatalf("expected 2 harness branches, got %v", branches)
	}

	// Pretend a year has passed so both branches are old
	now := time.Now().Add(365 * 24 * time.Hour)
	stale, err := gitOps.FindStaleBranches(ctx, repo, "buckal-test-*", now)
	if err != nil {
		t.Fatalf("FindStaleBranches failed: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale branches, got %d", len(stale))
	}
	for _, b := range stale {
		if b.Age < 364*24*time.Hour {
			t.Errorf("unexpected age for %s: %v", b.Name, b.Age)
		}
	}

	// The checked out branch is never reported
	runGit(t, repo, "checkout", "buckal-test-20240101-000000")
	stale, err = gitOps.FindStaleBranches(ctx, repo, "buckal-test-*", now)
	if err != nil {
		t.Fatalf("FindStaleBranches failed: %v", err)
	}
	if len(stale) != 1 || stale[0].Name != "buckal-test-20240102-000000" {
		t.Errorf("expected only the other branch, got %+v", stale)
	}
}

func TestCleanupStaleBranches(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	runGit(t, repo, "branch", "buckal-test-old")

	gitOps, err := NewGit(ctx, Config{})
	if err != nil {
		t.Fatalf("failed to create git ops: %v", err)
	}

	// Too recent for a 7 day retention
	deleted, failures, err := gitOps.CleanupStaleBranches(ctx, repo, "buckal-test-*", 7*24*time.Hour, time.Now(), false)
	if err != nil || len(failures) != 0 {
		t.Fatalf("CleanupStaleBranches failed: %v %v", err, failures)
	}
	if len(deleted) != 0 {
		t.Errorf("expected nothing deleted, got %+v", deleted)
	}

	later := time.Now().Add(30 * 24 * time.Hour)

	// Dry run reports without deleting
	deleted, _, err = gitOps.CleanupStaleBranches(ctx, repo, "buckal-test-*", 7*24*time.Hour, later, true)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected 1 branch in dry run, got %d", len(deleted))
	}
	exists, _ := gitOps.BranchExists(ctx, repo, "buckal-test-old")
	if !exists {
		t.Fatal("dry run must not delete")
	}

	deleted, failures, err = gitOps.CleanupStaleBranches(ctx, repo, "buckal-test-*", 7*24*time.Hour, later, false)
	if err != nil || len(failures) != 0 {
		t.Fatalf("CleanupStaleBranches failed: %v %v", err, failures)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected 1 deleted branch, got %d", len(deleted))
	}
	exists, _ = gitOps.BranchExists(ctx, repo, "buckal-test-old")
	if exists {
		t.Error("expected branch to be deleted")
	}
}

func TestSummarizeStaleBranches(t *testing.T) {
	if got := SummarizeStaleBranches(nil); !strings.Contains(got, "No stale") {
		t.Errorf("unexpected empty summary: %q", got)
	}

	summary := SummarizeStaleBranches([]StaleBranch{
		{Name: "a", Age: 2 * 24 * time.Hour},
		{Name: "b", Age: 10 * 24 * time.Hour},
		{Name: "c", Age: 40 * 24 * time.Hour},
	})
	for _, want := range []string{"Found 3", "Recent", "Old (7-30 days)", "Very Old", "  - c (40.0 days old)"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}
