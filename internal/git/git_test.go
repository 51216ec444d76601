package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// runGit runs a git command in dir and fails the test on error.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output))
}

// initRepo creates a repository with one commit on branch main.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# sample\n"), 0644); err != nil {
		t.Fatalf("Failed to write README: %v", err)
	}
	runGit(t, dir, "add", "README.md")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

// TestGitOperations tests the basic git operations
func TestGitOperations(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)

	var echoed []string
	git, err := NewGit(ctx, Config{Echo: func(cmdline, dir string) { echoed = append(echoed, cmdline) }})
	if err != nil {
		t.Fatalf("Failed to create Git instance: %v", err)
	}

	t.Run("InsideWorkTree", func(t *testing.T) {
		inside, err := git.IsInsideWorkTree(ctx, repo)
		if err != nil {
			t.Fatalf("IsInsideWorkTree failed: %v", err)
		}
		if !inside {
			t.Error("Expected repo to be a work tree")
		}

		inside, err = git.IsInsideWorkTree(ctx, t.TempDir())
		if err != nil {
			t.Fatalf("IsInsideWorkTree on plain dir failed: %v", err)
		}
		if inside {
			t.Error("Expected plain temp dir not to be a work tree")
		}
	})

	t.Run("CleanAfterCommit", func(t *testing.T) {
		hasChanges, err := git.HasUncommittedChanges(ctx, repo)
		if err != nil {
			t.Fatalf("HasUncommittedChanges failed: %v", err)
		}
		if hasChanges {
			t.Error("Expected no uncommitted changes")
		}
	})

	t.Run("CurrentBranch", func(t *testing.T) {
		branch, err := git.CurrentBranch(ctx, repo)
		if err != nil {
			t.Fatalf("CurrentBranch failed: %v", err)
		}
		if branch != "main" {
			t.Errorf("Expected main, got %s", branch)
		}
	})

	t.Run("CreateAndCheckoutBranch", func(t *testing.T) {
		exists, err := git.BranchExists(ctx, repo, "feature")
		if err != nil {
			t.Fatalf("BranchExists failed: %v", err)
		}
		if exists {
			t.Fatal("Expected feature branch not to exist yet")
		}

		if err := git.CreateBranch(ctx, repo, "feature"); err != nil {
			t.Fatalf("CreateBranch failed: %v", err)
		}
		exists, err = git.BranchExists(ctx, repo, "feature")
		if err != nil || !exists {
			t.Fatalf("Expected feature branch to exist (err=%v)", err)
		}

		if err := git.CreateBranch(ctx, repo, "feature"); err == nil {
			t.Error("Expected error creating a duplicate branch")
		}

		if err := git.Checkout(ctx, repo, "main"); err != nil {
			t.Fatalf("Checkout failed: %v", err)
		}
		branch, _ := git.CurrentBranch(ctx, repo)
		if branch != "main" {
			t.Errorf("Expected main after checkout, got %s", branch)
		}

		if err := git.Checkout(ctx, repo, "does-not-exist"); err == nil {
			t.Error("Expected checkout of missing branch to fail")
		}
	})

	t.Run("CommitChanges", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(repo, "BUCK"), []byte("# generated\n"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}

		status, err := git.GetStatus(ctx, repo)
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if len(status.Untracked) != 1 || status.Untracked[0] != "BUCK" {
			t.Errorf("Expected BUCK untracked, got %v", status.Untracked)
		}

		if _, err := git.CommitChanges(ctx, repo, CommitOptions{AddAll: true}); err == nil {
			t.Error("Expected error for empty commit message")
		}

		hash, err := git.CommitChanges(ctx, repo, CommitOptions{Message: "add BUCK", AddAll: true})
		if err != nil {
			t.Fatalf("CommitChanges failed: %v", err)
		}
		if len(hash) != 40 {
			t.Errorf("Expected 40 character hash, got %q", hash)
		}

		hasChanges, _ := git.HasUncommittedChanges(ctx, repo)
		if hasChanges {
			t.Error("Expected clean tree after commit")
		}
	})

	if len(echoed) == 0 {
		t.Error("Expected git commands to be echoed")
	}
}

func TestPushForceWithLease(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)

	remote := t.TempDir()
	runGit(t, remote, "init", "--bare")
	runGit(t, repo, "remote", "add", "origin", remote)
	runGit(t, repo, "push", "origin", "main")

	git, err := NewGit(ctx, Config{})
	if err != nil {
		t.Fatalf("Failed to create Git instance: %v", err)
	}

	if err := git.Push(ctx, repo, PushOptions{}); err == nil {
		t.Error("Expected error for missing refspec")
	}

	if err := git.CreateBranch(ctx, repo, "work"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if _, err := git.CommitChanges(ctx, repo, CommitOptions{Message: "work", AllowEmpty: true}); err != nil {
		t.Fatalf("CommitChanges failed: %v", err)
	}

	if err := git.Push(ctx, repo, PushOptions{Refspec: "HEAD:main", ForceWithLease: true}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	local := runGit(t, repo, "rev-parse", "HEAD")
	pushed := runGit(t, remote, "rev-parse", "refs/heads/main")
	if local != pushed {
		t.Errorf("Expected remote main %s to equal local HEAD %s", pushed, local)
	}
}

func TestPushForceWithLeaseRejectsAdvancedRemote(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)

	remote := t.TempDir()
	runGit(t, remote, "init", "--bare")
	runGit(t, repo, "remote", "add", "origin", remote)
	runGit(t, repo, "push", "origin", "main")

	// Someone else advances main after our last fetch
	parent := t.TempDir()
	runGit(t, parent, "clone", "--branch", "main", remote, "other")
	other := filepath.Join(parent, "other")
	runGit(t, other, "-c", "user.name=Other", "-c", "user.email=other@example.com", "commit", "--allow-empty", "-m", "theirs")
	runGit(t, other, "push", "origin", "main")
	theirs := runGit(t, other, "rev-parse", "HEAD")

	git, err := NewGit(ctx, Config{})
	if err != nil {
		t.Fatalf("Failed to create Git instance: %v", err)
	}
	if err := git.CreateBranch(ctx, repo, "work"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if _, err := git.CommitChanges(ctx, repo, CommitOptions{Message: "work", AllowEmpty: true}); err != nil {
		t.Fatalf("CommitChanges failed: %v", err)
	}

	if err := git.Push(ctx, repo, PushOptions{Refspec: "HEAD:main", ForceWithLease: true}); err == nil {
		t.Fatal("Expected push to be rejected when the remote moved since the last fetch")
	}
	if got := runGit(t, remote, "rev-parse", "refs/heads/main"); got != theirs {
		t.Errorf("Expected remote main to stay at %s, got %s", theirs, got)
	}
}

func TestParseStatus(t *testing.T) {
	status, err := parseStatus("?? new.txt\n M changed.go\nA  added.go\n D gone.go\nR  old -> new\nUU conflict.go\n")
	if err != nil {
		t.Fatalf("parseStatus failed: %v", err)
	}
	if !status.HasChanges {
		t.Error("Expected HasChanges")
	}
	if len(status.Untracked) != 1 || len(status.Added) != 1 || len(status.Deleted) != 1 || len(status.Renamed) != 1 {
		t.Errorf("Unexpected classification: %+v", status)
	}
	if len(status.Modified) != 2 {
		t.Errorf("Expected changed.go and conflict.go as modified, got %v", status.Modified)
	}

	empty, err := parseStatus("")
	if err != nil {
		t.Fatalf("parseStatus failed: %v", err)
	}
	if empty.HasChanges {
		t.Error("Expected no changes for empty output")
	}
}
