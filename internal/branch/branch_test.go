package branch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buck2hub/buckal-harness/internal/git"
)

// fakeGit is an in-memory GitOperations that records every call.
type fakeGit struct {
	inside   bool
	dirty    bool
	current  string
	branches map[string]bool
	calls    []string
	commits  []git.CommitOptions
	pushes   []git.PushOptions
	pushErr  error
}

func newFakeGit(current string, branches ...string) *fakeGit {
	f := &fakeGit{inside: true, current: current, branches: map[string]bool{current: true}}
	for _, b := range branches {
		f.branches[b] = true
	}
	return f
}

func (f *fakeGit) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeGit) IsInsideWorkTree(ctx context.Context, repoPath string) (bool, error) {
	f.record("inside")
	return f.inside, nil
}

func (f *fakeGit) HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error) {
	f.record("dirty")
	return f.dirty, nil
}

func (f *fakeGit) GetStatus(ctx context.Context, repoPath string) (*git.Status, error) {
	f.record("status")
	status := &git.Status{HasChanges: f.dirty}
	if f.dirty {
		status.Untracked = []string{"scratch.txt"}
	}
	return status, nil
}

func (f *fakeGit) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	f.record("current")
	return f.current, nil
}

func (f *fakeGit) BranchExists(ctx context.Context, repoPath, branch string) (bool, error) {
	f.record("exists %s", branch)
	return f.branches[branch], nil
}

func (f *fakeGit) Checkout(ctx context.Context, repoPath, branch string) error {
	f.record("checkout %s", branch)
	if !f.branches[branch] {
		return fmt.Errorf("no branch %s", branch)
	}
	f.current = branch
	return nil
}

func (f *fakeGit) CreateBranch(ctx context.Context, repoPath, branch string) error {
	f.record("create %s", branch)
	f.branches[branch] = true
	f.current = branch
	return nil
}

func (f *fakeGit) CommitChanges(ctx context.Context, repoPath string, opts git.CommitOptions) (string, error) {
	f.record("commit")
	f.commits = append(f.commits, opts)
	f.dirty = false
	return "abc123", nil
}

func (f *fakeGit) Push(ctx context.Context, repoPath string, opts git.PushOptions) error {
	f.record("push %s", opts.Refspec)
	f.pushes = append(f.pushes, opts)
	return f.pushErr
}

var fixedTime = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestManager(t *testing.T, g git.GitOperations) *Manager {
	t.Helper()
	m, err := NewManager(Config{Git: g, Clock: func() time.Time { return fixedTime }})
	require.NoError(t, err)
	return m
}

func TestManagerWithoutGit(t *testing.T) {
	m, err := NewManager(Config{})
	require.NoError(t, err)

	state, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/samples/demo"})
	require.NoError(t, err)
	assert.False(t, state.Managed)

	_, err = m.Prepare(context.Background(), PrepareOptions{RepoPath: "/samples/fd", Git: true})
	assert.Error(t, err)
}

func TestPrepareNonGitSampleIsNoop(t *testing.T) {
	fake := newFakeGit("main")
	m := newTestManager(t, fake)

	state, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/samples/demo", Git: false, InPlace: true})
	require.NoError(t, err)
	assert.False(t, state.Managed)
	assert.Empty(t, state.WorkingBranch)
	assert.Empty(t, fake.calls)

	require.NoError(t, m.RestoreOriginal(context.Background(), state))
	res, err := m.Publish(context.Background(), state, PublishOptions{InPlace: true, Push: true})
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Empty(t, fake.calls)
}

func TestPrepareOutsideWorkTree(t *testing.T) {
	fake := newFakeGit("main")
	fake.inside = false
	m := newTestManager(t, fake)

	state, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main"})
	require.NoError(t, err)
	assert.False(t, state.Managed)
	assert.Equal(t, []string{"inside"}, fake.calls)
}

func TestPrepareRejectsDirtyRepository(t *testing.T) {
	fake := newFakeGit("feature", "main")
	fake.dirty = true
	m := newTestManager(t, fake)

	_, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirtyRepository))
	assert.Contains(t, err.Error(), "1 untracked")
	assert.Equal(t, "feature", fake.current, "branch must not move")
	for _, c := range fake.calls {
		assert.False(t, strings.HasPrefix(c, "checkout") || strings.HasPrefix(c, "create"), "unexpected mutation %q", c)
	}
}

func TestPrepareSandboxedChecksOutBase(t *testing.T) {
	fake := newFakeGit("feature", "base")
	m := newTestManager(t, fake)

	state, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "base"})
	require.NoError(t, err)
	assert.True(t, state.Managed)
	assert.Equal(t, "feature", state.OriginalBranch)
	assert.Empty(t, state.WorkingBranch)
	assert.Equal(t, "base", fake.current)

	require.NoError(t, m.RestoreOriginal(context.Background(), state))
	assert.Equal(t, "feature", fake.current)
}

func TestPrepareAlreadyOnBase(t *testing.T) {
	fake := newFakeGit("main")
	m := newTestManager(t, fake)

	state, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main"})
	require.NoError(t, err)
	assert.NotContains(t, fake.calls, "checkout main")

	require.NoError(t, m.RestoreOriginal(context.Background(), state))
	assert.NotContains(t, fake.calls, "checkout main")
}

func TestPrepareInPlaceGeneratedName(t *testing.T) {
	fake := newFakeGit("main")
	m := newTestManager(t, fake)

	state, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true})
	require.NoError(t, err)
	assert.Equal(t, "buckal-test-20250304-050607", state.WorkingBranch)
	assert.Equal(t, state.WorkingBranch, fake.current)
}

func TestPrepareInPlaceCollisionSuffix(t *testing.T) {
	fake := newFakeGit("main", "buckal-test-20250304-050607", "buckal-test-20250304-050607-1")
	m := newTestManager(t, fake)

	state, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true})
	require.NoError(t, err)
	assert.Equal(t, "buckal-test-20250304-050607-2", state.WorkingBranch)
}

func TestPrepareExplicitBranchExists(t *testing.T) {
	fake := newFakeGit("feature", "main", "mine")
	m := newTestManager(t, fake)

	_, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true, BranchName: "mine"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBranchExists))
	assert.Equal(t, "feature", fake.current, "branch must not move")
	for _, c := range fake.calls {
		assert.False(t, strings.HasPrefix(c, "checkout") || strings.HasPrefix(c, "create"), "unexpected mutation %q", c)
	}
}

func TestPrepareExplicitBranch(t *testing.T) {
	fake := newFakeGit("main")
	m := newTestManager(t, fake)

	state, err := m.Prepare(context.Background(), PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true, BranchName: "mine"})
	require.NoError(t, err)
	assert.Equal(t, "mine", state.WorkingBranch)
}

func TestFreeNameExhausted(t *testing.T) {
	checked := 0
	_, err := FreeName("b", func(string) (bool, error) {
		checked++
		return true, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBranchNamesExhausted))
	assert.Equal(t, MaxBranchAttempts, checked)
}

func TestFreeNamePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := FreeName("b", func(string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitsAndPushes", func(t *testing.T) {
		fake := newFakeGit("main")
		m := newTestManager(t, fake)
		state, err := m.Prepare(ctx, PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true})
		require.NoError(t, err)

		fake.dirty = true
		res, err := m.Publish(ctx, state, PublishOptions{InPlace: true, Push: true, PublishRef: "release"})
		require.NoError(t, err)
		assert.True(t, res.Committed)
		assert.True(t, res.Pushed)
		assert.Equal(t, "buckal migrate update 20250304-050607", res.Message)
		require.Len(t, fake.commits, 1)
		assert.True(t, fake.commits[0].AddAll)
		require.Len(t, fake.pushes, 1)
		assert.Equal(t, git.PushOptions{Remote: "origin", Refspec: "HEAD:release", ForceWithLease: true}, fake.pushes[0])
	})

	t.Run("NothingToCommit", func(t *testing.T) {
		fake := newFakeGit("main")
		m := newTestManager(t, fake)
		state, err := m.Prepare(ctx, PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true})
		require.NoError(t, err)

		res, err := m.Publish(ctx, state, PublishOptions{InPlace: true, Push: true})
		require.NoError(t, err)
		assert.False(t, res.Committed)
		assert.Empty(t, fake.pushes)
	})

	t.Run("PushSuppressed", func(t *testing.T) {
		fake := newFakeGit("main")
		m := newTestManager(t, fake)
		state, err := m.Prepare(ctx, PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true})
		require.NoError(t, err)

		fake.dirty = true
		res, err := m.Publish(ctx, state, PublishOptions{InPlace: true, Push: false})
		require.NoError(t, err)
		assert.False(t, res.Committed)
		assert.Empty(t, fake.commits)
	})

	t.Run("SandboxedNeverPublishes", func(t *testing.T) {
		fake := newFakeGit("main")
		m := newTestManager(t, fake)
		state, err := m.Prepare(ctx, PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main"})
		require.NoError(t, err)

		fake.dirty = true
		res, err := m.Publish(ctx, state, PublishOptions{InPlace: false, Push: true})
		require.NoError(t, err)
		assert.False(t, res.Committed)
	})

	t.Run("PushFailure", func(t *testing.T) {
		fake := newFakeGit("main")
		fake.pushErr = errors.New("stale info")
		m := newTestManager(t, fake)
		state, err := m.Prepare(ctx, PrepareOptions{RepoPath: "/x", Git: true, BaseBranch: "main", InPlace: true})
		require.NoError(t, err)

		fake.dirty = true
		res, err := m.Publish(ctx, state, PublishOptions{InPlace: true, Push: true})
		require.Error(t, err)
		assert.True(t, res.Committed)
		assert.False(t, res.Pushed)
	})
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), output)
	return strings.TrimSpace(string(output))
}

// TestLifecycleWithRealGit drives Prepare and Publish against a clone of a
// bare remote.
func TestLifecycleWithRealGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	ctx := context.Background()

	seed := t.TempDir()
	runGit(t, seed, "init")
	runGit(t, seed, "config", "user.name", "Test User")
	runGit(t, seed, "config", "user.email", "test@example.com")
	runGit(t, seed, "symbolic-ref", "HEAD", "refs/heads/main")
	require.NoError(t, os.WriteFile(filepath.Join(seed, "Cargo.toml"), []byte("[package]\nname = \"demo\"\n"), 0644))
	runGit(t, seed, "add", "-A")
	runGit(t, seed, "commit", "-m", "initial")
	runGit(t, seed, "branch", "base")

	remote := filepath.Join(t.TempDir(), "remote.git")
	runGit(t, seed, "clone", "--bare", seed, remote)

	repo := filepath.Join(t.TempDir(), "sample")
	runGit(t, filepath.Dir(repo), "clone", remote, repo)
	runGit(t, repo, "config", "user.name", "Test User")
	runGit(t, repo, "config", "user.email", "test@example.com")
	runGit(t, repo, "checkout", "base")
	runGit(t, repo, "checkout", "main")

	ops, err := git.NewGit(ctx, git.Config{})
	require.NoError(t, err)
	m := newTestManager(t, ops)

	state, err := m.Prepare(ctx, PrepareOptions{RepoPath: repo, Git: true, BaseBranch: "base", InPlace: true})
	require.NoError(t, err)
	assert.Equal(t, "main", state.OriginalBranch)
	assert.Equal(t, "buckal-test-20250304-050607", runGit(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))

	require.NoError(t, os.WriteFile(filepath.Join(repo, "BUCK"), []byte("# generated\n"), 0644))
	res, err := m.Publish(ctx, state, PublishOptions{InPlace: true, Push: true, PublishRef: "main"})
	require.NoError(t, err)
	assert.True(t, res.Pushed)

	assert.Equal(t, runGit(t, repo, "rev-parse", "HEAD"), runGit(t, remote, "rev-parse", "refs/heads/main"))
	assert.Equal(t, res.Message, runGit(t, repo, "log", "-1", "--format=%s"))

	// A second run in the same second gets a suffixed name
	runGit(t, repo, "checkout", "main")
	state, err = m.Prepare(ctx, PrepareOptions{RepoPath: repo, Git: true, BaseBranch: "base", InPlace: true})
	require.NoError(t, err)
	assert.Equal(t, "buckal-test-20250304-050607-1", state.WorkingBranch)
}

func TestPruneRequiresCleaner(t *testing.T) {
	m := newTestManager(t, newFakeGit("main"))
	_, err := m.Prune(context.Background(), PruneOptions{RepoPath: "/x"})
	assert.Error(t, err)
}

func TestPruneWithRealGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	ctx := context.Background()

	repo := t.TempDir()
	runGit(t, repo, "init")
	runGit(t, repo, "config", "user.name", "Test User")
	runGit(t, repo, "config", "user.email", "test@example.com")
	runGit(t, repo, "symbolic-ref", "HEAD", "refs/heads/main")
	runGit(t, repo, "commit", "--allow-empty", "-m", "initial")

	// Branch tips dated relative to the manager clock
	commitAt := func(branch string, when time.Time) {
		runGit(t, repo, "checkout", "-b", branch, "main")
		cmd := exec.Command("git", "commit", "--allow-empty", "-m", branch)
		cmd.Dir = repo
		cmd.Env = append(os.Environ(), "GIT_COMMITTER_DATE="+when.Format(time.RFC3339), "GIT_AUTHOR_DATE="+when.Format(time.RFC3339))
		output, err := cmd.CombinedOutput()
		require.NoError(t, err, "%s", output)
	}
	commitAt("buckal-test-20250201-000000", fixedTime.Add(-30*24*time.Hour))
	commitAt("buckal-test-20250303-000000", fixedTime.Add(-24*time.Hour))
	commitAt("feature", fixedTime.Add(-30*24*time.Hour))
	commitAt("buckal-test-20250202-000000", fixedTime.Add(-30*24*time.Hour))

	ops, err := git.NewGit(ctx, git.Config{})
	require.NoError(t, err)
	m := newTestManager(t, ops)

	opts := PruneOptions{RepoPath: repo, Retention: 7 * 24 * time.Hour, DryRun: true}
	res, err := m.Prune(ctx, opts)
	require.NoError(t, err)
	assert.Len(t, res.Found, 2, "the checked out branch is not a candidate")
	require.Len(t, res.Deleted, 1)
	assert.Equal(t, "buckal-test-20250201-000000", res.Deleted[0].Name)
	assert.Equal(t, "buckal-test-20250201-000000", runGit(t, repo, "branch", "--list", "buckal-test-20250201-000000", "--format=%(refname:short)"))

	opts.DryRun = false
	res, err = m.Prune(ctx, opts)
	require.NoError(t, err)
	require.Len(t, res.Deleted, 1)
	assert.Empty(t, res.Failures)

	branches := runGit(t, repo, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	assert.NotContains(t, branches, "buckal-test-20250201-000000")
	assert.Contains(t, branches, "buckal-test-20250303-000000")
	assert.Contains(t, branches, "buckal-test-20250202-000000")
	assert.Contains(t, branches, "feature")
}
