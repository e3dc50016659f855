package entity

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/internal/edisonfs"
)

// FileEntity is any entity a Repository can persist as Markdown with YAML
// frontmatter: it has an id, a directory-derived state, and (optionally) an
// owning session.
type FileEntity interface {
	StateHolder
	GetID() string
}

// SessionScoped is implemented by entities that may live under a session's
// directory tree rather than the global management tree (spec.md §4.3
// "session-scoped storage").
type SessionScoped interface {
	GetSessionID() string
}

// GetSessionID satisfies SessionScoped for Task.
func (t *Task) GetSessionID() string { return t.SessionID }

// GetSessionID satisfies SessionScoped for QARecord.
func (q *QARecord) GetSessionID() string { return q.SessionID }

// Decoder builds a T from parsed frontmatter, preserved body, and the
// directory-derived state.
type Decoder[T FileEntity] func(frontmatter map[string]any, body, state string) (T, error)

// Encoder produces the frontmatter map to persist for entity. The body is
// handled separately by Repository (preserved from disk on Save, or
// supplied explicitly on Create) per spec.md §4.3's file format contract.
type Encoder[T FileEntity] func(entity T) (map[string]any, error)

// SessionLocator resolves a session id to its directory root
// (<sessions-root>/<session-state>/<session-id>). It is the one seam
// Repository needs into session bookkeeping, keeping this package free of
// an import on the session package.
type SessionLocator func(sessionID string) (dir string, ok bool, err error)

// SessionDirsFunc enumerates every known session's directory root, used to
// search the session-scoped space when an entity's owning session isn't
// known ahead of time (spec.md: "Lookups search both spaces in a defined
// order").
type SessionDirsFunc func() ([]string, error)

// Repository is the generic create/get/save/delete/list_by_state/find_by_*
// implementation shared by Task and QA records (Session uses its own
// JSON-backed repository in the session package). Grounded on
// original_source/src/edison/core/task/workflow/repository.py and
// qa/workflow/repository.py, which both wrap one entity_subdir of
// Markdown-with-frontmatter files under either the global management root
// or a session's directory tree.
type Repository[T FileEntity] struct {
	EntitySubdir string // "tasks" or "qa"
	GlobalRoot   string // management root containing EntitySubdir
	States       []string

	Locator     SessionLocator
	SessionDirs SessionDirsFunc
	LockTimeout time.Duration

	Decode Decoder[T]
	Encode Encoder[T]
}

func (r *Repository[T]) lockTimeout() time.Duration {
	if r.LockTimeout > 0 {
		return r.LockTimeout
	}
	return 5 * time.Second
}

// rootFor resolves the entity_subdir root for a given owning session id
// (empty for global), per spec.md's session-scoped-vs-global rule.
func (r *Repository[T]) rootFor(sessionID string) (string, error) {
	if sessionID == "" {
		return filepath.Join(r.GlobalRoot, r.EntitySubdir), nil
	}
	if r.Locator == nil {
		return "", edisonerrors.New(edisonerrors.KindConfig, "repository has no SessionLocator configured")
	}
	dir, ok, err := r.Locator(sessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", edisonerrors.New(edisonerrors.KindEntityNotFound, "session not found: "+sessionID)
	}
	return filepath.Join(dir, r.EntitySubdir), nil
}

// candidateRoots lists every entity_subdir root to search, global first,
// then every known session's, implementing the "search both spaces in a
// defined order" lookup rule.
func (r *Repository[T]) candidateRoots() ([]string, error) {
	roots := []string{filepath.Join(r.GlobalRoot, r.EntitySubdir)}
	if r.SessionDirs != nil {
		dirs, err := r.SessionDirs()
		if err != nil {
			return nil, err
		}
		for _, d := range dirs {
			roots = append(roots, filepath.Join(d, r.EntitySubdir))
		}
	}
	return roots, nil
}

func (r *Repository[T]) pathFor(root, state, id string) string {
	return filepath.Join(root, state, id+".md")
}

// Create writes a brand-new entity at <root>/<state>/<id>.md with body as
// the template-rendered initial body (spec.md §4.3: "On first creation, the
// body is rendered from a template via the composition engine's variable
// substitution" — that rendering happens upstream; Create just persists the
// result).
func (r *Repository[T]) Create(entity T, state, body string) error {
	sessionID := ""
	if s, ok := any(entity).(SessionScoped); ok {
		sessionID = s.GetSessionID()
	}
	root, err := r.rootFor(sessionID)
	if err != nil {
		return err
	}
	path := r.pathFor(root, state, entity.GetID())
	return r.writeAt(path, entity, body)
}

func (r *Repository[T]) writeAt(path string, entity T, body string) error {
	fm, err := r.Encode(entity)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "encode entity", err)
	}
	raw, err := RenderFrontmatter(fm, body)
	if err != nil {
		return err
	}

	release, err := edisonfs.NewLock(edisonfs.LockPathFor(path)).Acquire(r.lockTimeout())
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "acquire entity lock", err)
	}
	defer release()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "create entity directory", err)
	}
	return edisonfs.WriteFileAtomic(path, raw, 0o644)
}

// find locates id's file across every candidate root and state directory,
// returning the first match (global space first), its path, and its
// directory-derived state.
func (r *Repository[T]) find(id string) (path, state string, err error) {
	roots, err := r.candidateRoots()
	if err != nil {
		return "", "", err
	}
	for _, root := range roots {
		for _, st := range r.States {
			p := r.pathFor(root, st, id)
			if _, statErr := os.Stat(p); statErr == nil {
				return p, st, nil
			}
		}
	}
	return "", "", edisonerrors.New(edisonerrors.KindEntityNotFound, "entity not found: "+id).
		WithRemediation("check the id and that it has not been archived")
}

// Get loads id, failing closed (with a remediation hint) if the file is
// missing frontmatter entirely — a legacy file tolerated on bulk listings
// but not here, per spec.md §4.3's file format contract.
func (r *Repository[T]) Get(id string) (T, error) {
	var zero T
	path, state, err := r.find(id)
	if err != nil {
		return zero, err
	}
	return r.load(path, state)
}

func (r *Repository[T]) load(path, state string) (T, error) {
	var zero T
	raw, err := os.ReadFile(path)
	if err != nil {
		return zero, edisonerrors.Wrap(edisonerrors.KindPersistence, "read entity file "+path, err)
	}
	doc, err := ParseFrontmatter(raw)
	if err != nil {
		return zero, edisonerrors.Wrap(edisonerrors.KindPersistence, "parse entity file "+path, err).
			WithRemediation("repair the frontmatter block at the top of the file")
	}
	if len(doc.Frontmatter) == 0 {
		return zero, edisonerrors.New(edisonerrors.KindPersistence, "entity file "+path+" has no frontmatter").
			WithRemediation("this looks like a legacy file without frontmatter; migrate it before editing directly")
	}
	entity, err := r.Decode(doc.Frontmatter, doc.Body, state)
	if err != nil {
		return zero, edisonerrors.Wrap(edisonerrors.KindPersistence, "decode entity file "+path, err)
	}
	return entity, nil
}

// Save rewrites id's frontmatter in place, preserving the on-disk body
// unless replaceBody is non-nil, matching spec.md's "body is preserved from
// disk unless explicitly replaced".
func (r *Repository[T]) Save(entity T, replaceBody *string) error {
	path, _, err := r.find(entity.GetID())
	if err != nil {
		return err
	}

	body := ""
	if replaceBody != nil {
		body = *replaceBody
	} else {
		raw, err := os.ReadFile(path)
		if err != nil {
			return edisonerrors.Wrap(edisonerrors.KindPersistence, "read entity file "+path, err)
		}
		doc, err := ParseFrontmatter(raw)
		if err != nil {
			return edisonerrors.Wrap(edisonerrors.KindPersistence, "parse entity file "+path, err)
		}
		body = doc.Body
	}
	return r.writeAt(path, entity, body)
}

// Delete removes id's file (and its sidecar lock file, if present).
func (r *Repository[T]) Delete(id string) error {
	path, _, err := r.find(id)
	if err != nil {
		return err
	}
	release, err := edisonfs.NewLock(edisonfs.LockPathFor(path)).Acquire(r.lockTimeout())
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "acquire entity lock", err)
	}
	defer release()

	if err := os.Remove(path); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "delete entity file "+path, err)
	}
	_ = os.Remove(edisonfs.LockPathFor(path))
	return nil
}

// Move transitions id from its current state directory to to, renaming the
// file and preserving its body and frontmatter otherwise untouched. Called
// by Machine-driven transitions after guards/actions succeed (spec.md §4.3
// step 6); cross-device failures fall back to copy+verify+delete via
// internal/edisonfs.MoveFile.
func (r *Repository[T]) Move(id, to string) error {
	path, state, err := r.find(id)
	if err != nil {
		return err
	}
	if state == to {
		return nil
	}
	dest := filepath.Join(filepath.Dir(filepath.Dir(path)), to, filepath.Base(path))

	release, err := edisonfs.NewLock(edisonfs.LockPathFor(path)).Acquire(r.lockTimeout())
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "acquire entity lock", err)
	}
	defer release()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "create target state directory", err)
	}
	return edisonfs.MoveFile(path, dest)
}

// ListByState returns every valid entity in state across every known root,
// tolerating (silently skipping) legacy files with missing/malformed
// frontmatter, per spec.md's bulk-listing tolerance rule.
func (r *Repository[T]) ListByState(state string) ([]T, error) {
	var out []T
	roots, err := r.candidateRoots()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		dir := filepath.Join(root, state)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "list entity directory "+dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			entity, err := r.load(filepath.Join(dir, e.Name()), state)
			if err != nil {
				continue
			}
			out = append(out, entity)
		}
	}
	return out, nil
}

// FindBy scans every state in every root and returns entities matching
// predicate, tolerating unparseable legacy files the same way ListByState
// does.
func (r *Repository[T]) FindBy(predicate func(T) bool) ([]T, error) {
	var out []T
	for _, state := range r.States {
		entities, err := r.ListByState(state)
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			if predicate(e) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// FindBySessionID returns every entity owned by sessionID across all
// states.
func (r *Repository[T]) FindBySessionID(sessionID string) ([]T, error) {
	return r.FindBy(func(e T) bool {
		s, ok := any(e).(SessionScoped)
		return ok && s.GetSessionID() == sessionID
	})
}

// FindByID is a convenience wrapper matching the find_by_* naming
// convention from spec.md §4.3, equivalent to Get but never failing closed
// on legacy files (it folds into FindBy's tolerant scan instead of Get's
// strict single-file read).
func (r *Repository[T]) FindByID(id string) (T, bool, error) {
	matches, err := r.FindBy(func(e T) bool { return e.GetID() == id })
	if err != nil {
		var zero T
		return zero, false, err
	}
	if len(matches) == 0 {
		var zero T
		return zero, false, nil
	}
	return matches[0], true, nil
}
