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

	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/internal/gitutil"
)

// ShareMode selects how session state is made visible across every
// checkout, per spec.md §4.4.
type ShareMode string

const (
	SharePrimary  ShareMode = "primary"
	ShareExternal ShareMode = "external"
	ShareMeta     ShareMode = "meta"
)

// MetaConfig configures meta-mode sharing: an orphan-branch worktree whose
// sharedPaths are symlinked into every session worktree and the primary
// checkout.
type MetaConfig struct {
	WorktreesBase string
	MetaBranch    string // conventionally "edison-meta"
	SharedPaths   []string
	Timeout       time.Duration
}

func (c MetaConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 2 * time.Minute
}

func (c MetaConfig) metaPath() string {
	return filepath.Join(c.WorktreesBase, ".meta")
}

// EnsureMetaWorktree materializes the dedicated orphan-branch worktree that
// backs meta-mode sharing, creating the branch with an empty initial commit
// if it doesn't already exist (an orphan branch has no starting ref, so it
// can't go through gitutil.Repo.AddWorktree's branch-exists-or-create-from
// path).
func EnsureMetaWorktree(ctx context.Context, repo *gitutil.Repo, cfg MetaConfig) (string, error) {
	path := cfg.metaPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	exists, err := repo.BranchExists(cfg.MetaBranch)
	if err != nil {
		return "", err
	}
	if exists {
		if err := repo.AddWorktree(ctx, path, cfg.MetaBranch, cfg.MetaBranch, cfg.timeout()); err != nil {
			return "", err
		}
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindGit, "create meta worktree parent directory", err)
	}
	if _, err := runGitRaw(ctx, repo.Root, cfg.timeout(), "worktree", "add", "--detach", path); err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindGit, "create detached meta worktree", err)
	}
	if _, err := runGitRaw(ctx, path, cfg.timeout(), "checkout", "--orphan", cfg.MetaBranch); err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindGit, "checkout orphan meta branch", err)
	}
	if _, err := runGitRaw(ctx, path, cfg.timeout(), "commit", "--allow-empty", "-m", "edison meta worktree init"); err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindGit, "create initial meta worktree commit", err)
	}

	if err := installMetaPreCommitHook(path, cfg.SharedPaths); err != nil {
		return "", err
	}
	return path, nil
}

// LinkSharedPaths symlinks each of cfg.SharedPaths from the meta worktree
// into targetWorktree, merge-once: an existing correct symlink is left
// alone, and a conflicting non-symlink file is left alone (ownership stays
// with whatever created it) rather than being clobbered.
func LinkSharedPaths(metaPath, targetWorktree string, sharedPaths []string) error {
	for _, rel := range sharedPaths {
		src := filepath.Join(metaPath, rel)
		dst := filepath.Join(targetWorktree, rel)

		if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
			return edisonerrors.Wrap(edisonerrors.KindPersistence, "create shared path in meta worktree", err)
		}
		if _, err := os.Stat(src); os.IsNotExist(err) {
			if err := os.MkdirAll(src, 0o755); err != nil {
				return edisonerrors.Wrap(edisonerrors.KindPersistence, "seed shared path in meta worktree", err)
			}
		}

		if existing, err := os.Readlink(dst); err == nil {
			if existing == src {
				continue
			}
			if err := os.Remove(dst); err != nil {
				return edisonerrors.Wrap(edisonerrors.KindPersistence, "replace stale shared-path symlink", err)
			}
		} else if _, statErr := os.Stat(dst); statErr == nil {
			continue // a real file/dir already occupies this path; don't clobber it
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return edisonerrors.Wrap(edisonerrors.KindPersistence, "create symlink parent directory", err)
		}
		if err := os.Symlink(src, dst); err != nil {
			return edisonerrors.Wrap(edisonerrors.KindPersistence, "symlink shared path "+rel, err)
		}
	}
	return rewriteExcludes(targetWorktree, sharedPaths)
}

// rewriteExcludes appends each shared path as a "/<path>" pattern, unless
// already present, to the exclude file that `git rev-parse --git-path
// info/exclude` reports for the worktree. Git resolves that path to the
// common git dir's info/exclude, so the patterns apply to every worktree of
// the repository, not to this one alone. No existing pattern is pruned.
func rewriteExcludes(worktreePath string, sharedPaths []string) error {
	excludePath, err := gitPath(worktreePath, "info/exclude")
	if err != nil {
		return err
	}

	existing, _ := os.ReadFile(excludePath)
	lines := strings.Split(string(existing), "\n")
	present := map[string]bool{}
	for _, l := range lines {
		present[strings.TrimSpace(l)] = true
	}

	var toAppend []string
	for _, p := range sharedPaths {
		if !present["/"+p] {
			toAppend = append(toAppend, "/"+p)
		}
	}
	if len(toAppend) == 0 {
		return nil
	}

	f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindGit, "open info/exclude", err)
	}
	defer f.Close()
	for _, line := range toAppend {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return edisonerrors.Wrap(edisonerrors.KindGit, "append to info/exclude", err)
		}
	}
	return nil
}

// preCommitHookTemplate denies commits touching a path outside the
// sharedPaths allow-list, guarding against accidental commits of arbitrary
// files into the meta worktree's orphan branch.
const preCommitHookTemplate = `#!/bin/sh
# edison meta worktree guard: only sharedPaths may be committed here.
allowed='%s'
staged=$(git diff --cached --name-only)
for f in $staged; do
	ok=0
	for pattern in $allowed; do
		case "$f" in
			"$pattern"|"$pattern"/*) ok=1 ;;
		esac
	done
	if [ "$ok" -eq 0 ]; then
		echo "edison: refusing to commit '$f' in the meta worktree (not in sharedPaths)" >&2
		exit 1
	fi
done
exit 0
`

func installMetaPreCommitHook(metaPath string, sharedPaths []string) error {
	hookPath, err := gitPath(metaPath, "hooks/pre-commit")
	if err != nil {
		return err
	}
	script := fmt.Sprintf(preCommitHookTemplate, strings.Join(sharedPaths, " "))
	if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindGit, "create hooks directory", err)
	}
	if err := os.WriteFile(hookPath, []byte(script), 0o755); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindGit, "write pre-commit hook", err)
	}
	return nil
}

// gitPath resolves a path relative to dir's git directory. For a linked
// worktree, hooks live in the common git dir and git reports them as an
// absolute path; info/exclude is worktree-local and comes back relative.
func gitPath(dir, rel string) (string, error) {
	out, err := runGitRaw(context.Background(), dir, 10*time.Second, "rev-parse", "--git-path", rel)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(out)
	if filepath.IsAbs(trimmed) {
		return trimmed, nil
	}
	return filepath.Join(dir, trimmed), nil
}

func runGitRaw(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout, cmd.Stderr = &out, &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, out.String())
	}
	return out.String(), nil
}
