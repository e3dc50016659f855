package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeroybrun/edison-sub004/internal/gitutil"
)

// setupTestRepo initializes a real git repository with one commit on
// go-git's default branch ("master"), matching the teacher's go-git-backed
// test fixture style.
func setupTestRepo(t *testing.T) (*gitutil.Repo, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	readme := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("hello\n"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial commit", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	gitRepo, err := gitutil.Open(dir)
	require.NoError(t, err)
	return gitRepo, dir
}

func TestWorktreePathCollisionSuffix(t *testing.T) {
	base := t.TempDir()
	sessionID := "sess-1"

	first := worktreePath(base, sessionID)
	assert.Equal(t, filepath.Join(base, sessionID), first)

	require.NoError(t, os.MkdirAll(first, 0o755))
	second := worktreePath(base, sessionID)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, sessionID+"-")
}

func TestTailTruncatesLongOutput(t *testing.T) {
	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'a'
	}
	out := tail(string(long), 100)
	assert.Len(t, out, 100)
}

func TestTailPassesThroughShortOutput(t *testing.T) {
	assert.Equal(t, "short", tail("short", 100))
}

func TestResolveBaseRefFixed(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ref, label, err := resolveBaseRef(repo, WorktreeConfig{BaseBranchMode: BaseBranchFixed, FixedBaseBranch: "release"})
	require.NoError(t, err)
	assert.Equal(t, "release", ref)
	assert.Equal(t, "release", label)
}

func TestResolveBaseRefFixedRequiresBranchName(t *testing.T) {
	repo, _ := setupTestRepo(t)
	_, _, err := resolveBaseRef(repo, WorktreeConfig{BaseBranchMode: BaseBranchFixed})
	assert.Error(t, err)
}

func TestResolveBaseRefCurrent(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ref, label, err := resolveBaseRef(repo, WorktreeConfig{BaseBranchMode: BaseBranchCurrent})
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.Equal(t, ref, label)
}

func TestCreateWorktreePreservesPrimaryHead(t *testing.T) {
	repo, _ := setupTestRepo(t)
	before, err := repo.HeadMarker()
	require.NoError(t, err)

	worktrees := t.TempDir()
	cfg := WorktreeConfig{
		WorktreesBase:  worktrees,
		BranchPrefix:   "session-",
		BaseBranchMode: BaseBranchCurrent,
		Fetch:          FetchNever,
		Timeout:        30 * time.Second,
	}

	wt, err := CreateWorktree(context.Background(), repo, "sess-abc", cfg)
	require.NoError(t, err)
	assert.DirExists(t, wt.Path)
	assert.Equal(t, "session-sess-abc", wt.Branch)

	after, err := repo.HeadMarker()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRestoreWorktreeLandsAtDeterministicPath(t *testing.T) {
	repo, _ := setupTestRepo(t)

	worktrees := t.TempDir()
	cfg := WorktreeConfig{
		WorktreesBase:  worktrees,
		BranchPrefix:   "session-",
		BaseBranchMode: BaseBranchCurrent,
		Fetch:          FetchNever,
		Timeout:        30 * time.Second,
	}

	wt, err := CreateWorktree(context.Background(), repo, "sess-restore", cfg)
	require.NoError(t, err)
	expected := filepath.Join(worktrees, "sess-restore")
	assert.Equal(t, expected, wt.Path)

	restored, err := RestoreWorktree(context.Background(), repo, "sess-restore", wt.Path, cfg)
	require.NoError(t, err)
	assert.Equal(t, expected, restored.Path)
	assert.DirExists(t, restored.Path)
}
