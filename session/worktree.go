package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/internal/gitutil"
)

// BaseBranchMode selects how a new worktree's starting point is resolved,
// per spec.md §4.4.
type BaseBranchMode string

const (
	BaseBranchFixed   BaseBranchMode = "fixed"
	BaseBranchCurrent BaseBranchMode = "current"
)

// FetchPolicy controls when CreateWorktree fetches before adding a
// worktree, per spec.md §4.4's "fetch behavior is configurable".
type FetchPolicy string

const (
	FetchNever     FetchPolicy = "never"
	FetchAlways    FetchPolicy = "always"
	FetchOnFailure FetchPolicy = "on_failure"
)

// WorktreeConfig is the full set of knobs spec.md §4.4 names for worktree
// creation.
type WorktreeConfig struct {
	WorktreesBase       string
	BranchPrefix        string
	BaseBranchMode      BaseBranchMode
	FixedBaseBranch     string
	Fetch               FetchPolicy
	InstallDeps         bool
	PostInstallCommands []string
	Timeout             time.Duration
}

func (c WorktreeConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 2 * time.Minute
}

// Worktree describes a materialized session worktree.
type Worktree struct {
	Path       string
	Branch     string
	BaseBranch string
}

// resolveBaseRef implements baseBranchMode: fixed uses the configured
// branch name; current snapshots the primary worktree's HEAD ref without
// mutating it.
func resolveBaseRef(repo *gitutil.Repo, cfg WorktreeConfig) (ref, label string, err error) {
	switch cfg.BaseBranchMode {
	case BaseBranchFixed:
		if cfg.FixedBaseBranch == "" {
			return "", "", edisonerrors.New(edisonerrors.KindConfig, "baseBranchMode=fixed requires a configured branch name")
		}
		return cfg.FixedBaseBranch, cfg.FixedBaseBranch, nil
	case BaseBranchCurrent, "":
		marker, err := repo.HeadMarker()
		if err != nil {
			return "", "", err
		}
		branch, err := repo.CurrentBranch()
		if err != nil {
			return "", "", err
		}
		if branch != "" {
			return branch, branch, nil
		}
		return marker, marker, nil
	default:
		return "", "", edisonerrors.New(edisonerrors.KindConfig, "unknown baseBranchMode: "+string(cfg.BaseBranchMode))
	}
}

// worktreePath computes <worktrees-base>/<session_id>, appending a UUID
// suffix if the path is already occupied.
func worktreePath(base, sessionID string) string {
	path := filepath.Join(base, sessionID)
	if _, err := os.Stat(path); err != nil {
		return path
	}
	return path + "-" + uuid.NewString()[:8]
}

// CreateWorktree materializes an isolated worktree for sessionID, enforcing
// the primary-HEAD-unchanged invariant and spec.md §4.4's health checks.
func CreateWorktree(ctx context.Context, repo *gitutil.Repo, sessionID string, cfg WorktreeConfig) (*Worktree, error) {
	before, err := CaptureHeadMarker(repo)
	if err != nil {
		return nil, err
	}

	baseRef, baseLabel, err := resolveBaseRef(repo, cfg)
	if err != nil {
		return nil, err
	}

	path := worktreePath(cfg.WorktreesBase, sessionID)
	branch := cfg.BranchPrefix + sessionID

	if cfg.Fetch == FetchAlways {
		_ = repo.Fetch(ctx, "", cfg.timeout())
	}

	addErr := repo.AddWorktree(ctx, path, branch, baseRef, cfg.timeout())
	if addErr != nil && cfg.Fetch == FetchOnFailure {
		if ferr := repo.Fetch(ctx, "", cfg.timeout()); ferr == nil {
			addErr = repo.AddWorktree(ctx, path, branch, baseRef, cfg.timeout())
		}
	}
	if addErr != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindGit, "create worktree for session "+sessionID, addErr)
	}

	if err := before.AssertUnchanged(repo); err != nil {
		_ = repo.RemoveWorktree(ctx, path, cfg.timeout())
		return nil, err
	}

	if err := runHealthChecks(ctx, path, branch, cfg.timeout()); err != nil {
		_ = repo.RemoveWorktree(ctx, path, cfg.timeout())
		return nil, err
	}

	if cfg.InstallDeps {
		if err := installDependencies(ctx, path, cfg.timeout()); err != nil {
			return nil, edisonerrors.Wrap(edisonerrors.KindGit, "install dependencies in worktree", err)
		}
	}
	for _, cmd := range cfg.PostInstallCommands {
		if _, err := runShellCaptured(ctx, path, cmd, cfg.timeout()); err != nil {
			return nil, edisonerrors.Wrap(edisonerrors.KindGit, "post-install command failed: "+cmd, err)
		}
	}

	return &Worktree{Path: path, Branch: branch, BaseBranch: baseLabel}, nil
}

// runHealthChecks implements spec.md §4.4's post-creation checks:
// rev-parse confirms a worktree, the checked-out branch matches, and the
// `.git` file (not directory) points at a real gitdir.
func runHealthChecks(ctx context.Context, path, branch string, timeout time.Duration) error {
	ok, err := gitutil.RevParseIsInsideWorkTree(ctx, path, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return edisonerrors.New(edisonerrors.KindGit, "worktree health check failed: not inside a work tree: "+path)
	}

	wtRepo, err := gitutil.Open(path)
	if err != nil {
		return err
	}
	current, err := wtRepo.CurrentBranch()
	if err != nil {
		return err
	}
	if current != branch {
		return edisonerrors.New(edisonerrors.KindGit, fmt.Sprintf("worktree health check failed: expected branch %s, got %s", branch, current))
	}

	gitFile := filepath.Join(path, ".git")
	info, err := os.Stat(gitFile)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindGit, "worktree health check: stat .git", err)
	}
	if info.IsDir() {
		return edisonerrors.New(edisonerrors.KindGit, "worktree health check failed: .git is a directory, expected a gitdir pointer file")
	}
	data, err := os.ReadFile(gitFile)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindGit, "worktree health check: read .git pointer", err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "gitdir:") {
		return edisonerrors.New(edisonerrors.KindGit, "worktree health check failed: .git does not contain a gitdir: pointer")
	}
	gitdir := strings.TrimSpace(strings.TrimPrefix(line, "gitdir:"))
	if _, err := os.Stat(gitdir); err != nil {
		return edisonerrors.New(edisonerrors.KindGit, "worktree health check failed: gitdir target does not exist: "+gitdir)
	}
	return nil
}

// lockfileInstallCommands maps a lockfile name to the immutable install
// command it implies, per spec.md §4.4's "lockfile-preserving install
// command inferred from lockfile presence".
var lockfileInstallCommands = []struct {
	lockfile string
	command  []string
	fallback []string
}{
	{"pnpm-lock.yaml", []string{"pnpm", "install", "--frozen-lockfile"}, []string{"pnpm", "install"}},
	{"package-lock.json", []string{"npm", "ci"}, []string{"npm", "install"}},
	{"yarn.lock", []string{"yarn", "install", "--frozen-lockfile"}, []string{"yarn", "install"}},
	{"go.sum", []string{"go", "mod", "download"}, []string{"go", "mod", "tidy"}},
}

// installDependencies runs the lockfile-implied immutable install command,
// falling back to a single non-immutable retry on failure.
func installDependencies(ctx context.Context, path string, timeout time.Duration) error {
	for _, candidate := range lockfileInstallCommands {
		if _, err := os.Stat(filepath.Join(path, candidate.lockfile)); err != nil {
			continue
		}
		_, err := runCommand(ctx, path, timeout, candidate.command)
		if err == nil {
			return nil
		}
		_, err = runCommand(ctx, path, timeout, candidate.fallback)
		return err
	}
	return nil
}

func runCommand(ctx context.Context, dir string, timeout time.Duration, args []string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, args[0], args[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout, cmd.Stderr = &out, &out
	err := cmd.Run()
	return out.String(), err
}

// runShellCaptured runs command via `sh -c`, returning the tail of combined
// output on failure per spec.md §4.4's "tail-capture on failure".
func runShellCaptured(ctx context.Context, dir, command string, timeout time.Duration) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout, cmd.Stderr = &out, &out
	if err := cmd.Run(); err != nil {
		return tail(out.String(), 4096), err
	}
	return out.String(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// RestoreWorktree deletes an archived worktree directory (so git no longer
// tracks it) then recreates it via CreateWorktree, asserting the resulting
// path lands at the deterministic, unsuffixed <worktrees-base>/<session_id>
// path. The expected path must be computed before CreateWorktree runs:
// worktreePath falls back to a random UUID-suffixed form when the target
// path is already occupied, which after a successful restore is always true
// of the path CreateWorktree just created.
func RestoreWorktree(ctx context.Context, repo *gitutil.Repo, sessionID, archivedPath string, cfg WorktreeConfig) (*Worktree, error) {
	expected := filepath.Join(cfg.WorktreesBase, sessionID)

	if err := os.RemoveAll(archivedPath); err != nil && !os.IsNotExist(err) {
		return nil, edisonerrors.Wrap(edisonerrors.KindGit, "remove archived worktree directory", err)
	}
	_ = repo.PruneWorktrees(ctx, cfg.timeout())

	wt, err := CreateWorktree(ctx, repo, sessionID, cfg)
	if err != nil {
		return nil, err
	}
	if wt.Path != expected {
		return nil, edisonerrors.New(edisonerrors.KindGit, fmt.Sprintf("restored worktree path mismatch: expected %s, got %s", expected, wt.Path))
	}
	return wt, nil
}

// CleanupWorktree force-removes a worktree (tolerating failure) and
// optionally deletes its branch.
func CleanupWorktree(ctx context.Context, repo *gitutil.Repo, wt *Worktree, deleteBranch bool, timeout time.Duration) {
	_ = repo.RemoveWorktree(ctx, wt.Path, timeout)
	if deleteBranch {
		_ = repo.DeleteBranch(ctx, wt.Branch, timeout)
	}
}

// PruneWorktrees runs `git worktree prune`.
func PruneWorktrees(ctx context.Context, repo *gitutil.Repo, timeout time.Duration) error {
	return repo.PruneWorktrees(ctx, timeout)
}
