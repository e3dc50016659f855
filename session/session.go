package session

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/entity"
	"github.com/leeroybrun/edison-sub004/internal/edisonfs"
	"github.com/leeroybrun/edison-sub004/internal/gitutil"
)

// ActivityEntry is one logged session event (spec.md §3.1's "activity
// log").
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// GitRecord is a session's optional git sub-record, present only for
// git-repository projects.
type GitRecord struct {
	WorktreePath string `json:"worktreePath"`
	BranchName   string `json:"branchName"`
	BaseBranch   string `json:"baseBranch"`
}

// Session is spec.md §3.1's agent work context, persisted as JSON per
// spec.md §4.3's "Session, which may be JSON in nested layout".
type Session struct {
	ID          string          `json:"id"`
	Metadata    entity.Metadata `json:"metadata"`
	ActivityLog []ActivityEntry `json:"activityLog,omitempty"`
	Git         *GitRecord      `json:"git,omitempty"`

	state string
}

// NewSession builds a Session with freshly stamped metadata.
func NewSession(id, createdBy string) *Session {
	return &Session{ID: id, Metadata: entity.NewMetadata(createdBy, id)}
}

// GetID satisfies entity.FileEntity-shaped identity lookups.
func (s *Session) GetID() string { return s.ID }

// State returns the directory-derived state last assigned by the
// repository.
func (s *Session) State() string { return s.state }

// SetState is called exclusively by Repository.
func (s *Session) SetState(state string) { s.state = state }

// LogActivity appends an activity entry and touches metadata.
func (s *Session) LogActivity(action, detail string) {
	s.ActivityLog = append(s.ActivityLog, ActivityEntry{Timestamp: time.Now().UTC(), Action: action, Detail: detail})
	s.Metadata.Touch()
}

// RecordTransition satisfies entity.Recorder so Session can drive through
// the same entity.Machine as Task/QA, even though it has no dedicated
// state_history field — a transition is logged as an activity entry instead,
// matching spec.md §3.3's lighter-weight session lifecycle. Archive moves the
// session directory directly and does not call it.
func (s *Session) RecordTransition(from, to, reason string, violations []string) {
	detail := reason
	if len(violations) > 0 {
		detail = reason + " (violations: " + joinStrings(violations, "; ") + ")"
	}
	s.LogActivity(from+"->"+to, detail)
}

func joinStrings(items []string, sep string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += sep
		}
		out += it
	}
	return out
}

// Repository is the JSON-backed store for sessions, laid out as
// <sessions-root>/<state>/<id>/session.json — a directory per session so
// the session-scoped task/qa subtrees from spec.md §4.3 nest underneath it.
type Repository struct {
	SessionsRoot string
	States       []string
	LockTimeout  time.Duration
}

func (r *Repository) lockTimeout() time.Duration {
	if r.LockTimeout > 0 {
		return r.LockTimeout
	}
	return 5 * time.Second
}

func (r *Repository) dirFor(state, id string) string {
	return filepath.Join(r.SessionsRoot, state, id)
}

func (r *Repository) pathFor(state, id string) string {
	return filepath.Join(r.dirFor(state, id), "session.json")
}

func (r *Repository) find(id string) (path, state string, err error) {
	for _, st := range r.States {
		p := r.pathFor(st, id)
		if _, statErr := os.Stat(p); statErr == nil {
			return p, st, nil
		}
	}
	return "", "", edisonerrors.New(edisonerrors.KindEntityNotFound, "session not found: "+id)
}

func (r *Repository) writeAt(path string, s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "marshal session", err)
	}

	release, err := edisonfs.NewLock(edisonfs.LockPathFor(path)).Acquire(r.lockTimeout())
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "acquire session lock", err)
	}
	defer release()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "create session directory", err)
	}
	return edisonfs.WriteFileAtomic(path, data, 0o644)
}

// Create persists a brand-new session in state.
func (r *Repository) Create(s *Session, state string) error {
	return r.writeAt(r.pathFor(state, s.ID), s)
}

// Get loads a session by id, searching every configured state directory.
func (r *Repository) Get(id string) (*Session, error) {
	path, state, err := r.find(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "read session file", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "parse session file", err)
	}
	s.SetState(state)
	return &s, nil
}

// Save rewrites a session's JSON in place.
func (r *Repository) Save(s *Session) error {
	path, _, err := r.find(s.ID)
	if err != nil {
		return err
	}
	return r.writeAt(path, s)
}

// Delete removes a session's entire directory tree.
func (r *Repository) Delete(id string) error {
	path, state, err := r.find(id)
	if err != nil {
		return err
	}
	_ = path
	return os.RemoveAll(r.dirFor(state, id))
}

// Move renames a session's directory from its current state to to,
// preserving everything nested under it (session-scoped task/qa subtrees
// included). Falls back to a recursive copy+delete when the directory move
// crosses a filesystem boundary, mirroring internal/edisonfs.MoveFile's
// single-file strategy at directory granularity.
func (r *Repository) Move(id, to string) error {
	_, state, err := r.find(id)
	if err != nil {
		return err
	}
	if state == to {
		return nil
	}
	src := r.dirFor(state, id)
	dst := r.dirFor(to, id)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "create target state directory", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyDirThenRemove(src, dst)
}

func copyDirThenRemove(src, dst string) error {
	if err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	}); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "copy session directory across devices", err)
	}
	if err := os.RemoveAll(src); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "remove source session directory after cross-device move (destination is valid)", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// ListByState returns every session in state.
func (r *Repository) ListByState(state string) ([]*Session, error) {
	dir := filepath.Join(r.SessionsRoot, state)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "list sessions directory", err)
	}
	var out []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), "session.json"))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		s.SetState(state)
		out = append(out, &s)
	}
	return out, nil
}

// Create allocates a session id's directory, and for git-repository
// projects materializes an isolated worktree, matching spec.md §4.4's
// "Session creation" contract.
func Create(ctx context.Context, repo *Repository, gitRepo *gitutil.Repo, id, createdBy, initialState string, wcfg WorktreeConfig) (*Session, error) {
	s := NewSession(id, createdBy)

	if gitRepo != nil {
		wt, err := CreateWorktree(ctx, gitRepo, id, wcfg)
		if err != nil {
			return nil, err
		}
		s.Git = &GitRecord{WorktreePath: wt.Path, BranchName: wt.Branch, BaseBranch: wt.BaseBranch}
	}

	if err := repo.Create(s, initialState); err != nil {
		return nil, err
	}
	s.SetState(initialState)
	return s, nil
}

// Archive retires s's worktree (tolerating cleanup failure, per spec.md
// §4.4) and moves its directory into terminalState.
func Archive(ctx context.Context, repo *Repository, gitRepo *gitutil.Repo, s *Session, terminalState string, timeout time.Duration) error {
	if s.Git != nil && gitRepo != nil {
		CleanupWorktree(ctx, gitRepo, &Worktree{Path: s.Git.WorktreePath, Branch: s.Git.BranchName}, true, timeout)
	}
	return repo.Move(s.ID, terminalState)
}
