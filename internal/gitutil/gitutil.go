// Package gitutil wraps the subset of git operations Edison needs: reading
// the current HEAD marker, creating/removing/pruning worktrees, branch
// existence checks, and fetch; it has no worktree or branch listing. It
// follows jmgilman-sow's pattern of using go-git/v5 for read-only
// inspection (HEAD, branch existence, status) and
// shelling out to the `git` binary for worktree management, since go-git
// has no native `git worktree` support.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
)

// Repo wraps a git repository checkout (the primary checkout, or any
// worktree of it) rooted at Root.
type Repo struct {
	Root string
	repo *gogit.Repository
}

// Open opens the git repository containing root (root must itself be a
// checkout root, not an arbitrary subdirectory).
func Open(root string) (*Repo, error) {
	r, err := gogit.PlainOpen(root)
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindGit, "open git repository", err)
	}
	return &Repo{Root: root, repo: r}, nil
}

// HeadMarker captures a string uniquely identifying the current HEAD
// position, in the form "<branch>" for an attached HEAD or
// "DETACHED@<sha>" for a detached one. This is compared byte-for-byte
// before and after worktree operations to enforce the primary-HEAD
// invariant from spec.md §4.4/§5.
func (r *Repo) HeadMarker() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindGit, "read HEAD", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "DETACHED@" + head.Hash().String(), nil
}

// CurrentBranch returns the short branch name HEAD points at, or "" if HEAD
// is detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindGit, "read HEAD", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// BranchExists reports whether a local branch with the given name exists.
func (r *Repo) BranchExists(branch string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), false)
	if err == nil {
		return true, nil
	}
	if err == plumbing.ErrReferenceNotFound {
		return false, nil
	}
	return false, edisonerrors.Wrap(edisonerrors.KindGit, "look up branch reference", err)
}

// IsClean reports whether the worktree has no uncommitted changes.
func (r *Repo) IsClean() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, edisonerrors.Wrap(edisonerrors.KindGit, "open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, edisonerrors.Wrap(edisonerrors.KindGit, "read worktree status", err)
	}
	return status.IsClean(), nil
}

// ChangedFiles returns the set of paths with uncommitted modifications,
// used by the validation executor to match validator `triggers` globs
// against the session's changed files.
func (r *Repo) ChangedFiles() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindGit, "open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindGit, "read worktree status", err)
	}
	files := make([]string, 0, len(status))
	for path := range status {
		files = append(files, path)
	}
	return files, nil
}

// runGit executes `git <args...>` with dir as the working directory and a
// bounded timeout, returning combined output. All worktree/branch mutation
// goes through the CLI rather than go-git, matching jmgilman-sow's
// rationale: "more reliable than go-git for worktrees".
func runGit(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), edisonerrors.Wrap(
			edisonerrors.KindGit,
			fmt.Sprintf("git %s", strings.Join(args, " ")),
			fmt.Errorf("%w: %s", err, out.String()),
		)
	}
	return out.String(), nil
}

// AddWorktree creates a worktree at path for branch, creating the branch
// from startRef if it doesn't already exist. Mirrors spec.md §4.4: "If the
// branch exists, `git worktree add <path> <branch>`; otherwise `git
// worktree add -b <branch> <path> <start_ref>`."
func (r *Repo) AddWorktree(ctx context.Context, path, branch, startRef string, timeout time.Duration) error {
	exists, err := r.BranchExists(branch)
	if err != nil {
		return err
	}
	if exists {
		_, err := runGit(ctx, r.Root, timeout, "worktree", "add", path, branch)
		return err
	}
	_, err = runGit(ctx, r.Root, timeout, "worktree", "add", "-b", branch, path, startRef)
	return err
}

// RemoveWorktree force-removes the worktree at path. Failure is tolerated
// (logged by the caller) per spec.md §4.4 cleanup semantics.
func (r *Repo) RemoveWorktree(ctx context.Context, path string, timeout time.Duration) error {
	_, err := runGit(ctx, r.Root, timeout, "worktree", "remove", "--force", path)
	return err
}

// DeleteBranch force-deletes a local branch.
func (r *Repo) DeleteBranch(ctx context.Context, branch string, timeout time.Duration) error {
	_, err := runGit(ctx, r.Root, timeout, "branch", "-D", branch)
	return err
}

// PruneWorktrees runs `git worktree prune`.
func (r *Repo) PruneWorktrees(ctx context.Context, timeout time.Duration) error {
	_, err := runGit(ctx, r.Root, timeout, "worktree", "prune")
	return err
}

// Fetch runs `git fetch` with the given remote (empty string uses the
// default remote), used by worktree creation's configurable fetch policy.
func (r *Repo) Fetch(ctx context.Context, remote string, timeout time.Duration) error {
	args := []string{"fetch"}
	if remote != "" {
		args = append(args, remote)
	}
	_, err := runGit(ctx, r.Root, timeout, args...)
	return err
}

// RevParseIsInsideWorkTree runs `git rev-parse --is-inside-work-tree` in
// dir, used by worktree health checks.
func RevParseIsInsideWorkTree(ctx context.Context, dir string, timeout time.Duration) (bool, error) {
	out, err := runGit(ctx, dir, timeout, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "true", nil
}

// ShowTopLevel runs `git rev-parse --show-toplevel` in dir, used by the
// path resolver's git-based project-root detection fallback.
func ShowTopLevel(ctx context.Context, dir string, timeout time.Duration) (string, error) {
	out, err := runGit(ctx, dir, timeout, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
