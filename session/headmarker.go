// Package session implements spec.md §4.4: session creation, git worktree
// materialization, meta-worktree shared-state mode, and archival. Create and
// Archive move session directories through the session Repository directly;
// they do not run an entity.Machine. Session implements entity.StateHolder
// and entity.Recorder, so a caller can drive one through an entity.Machine.
package session

import (
	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/internal/gitutil"
)

// HeadMarker is the primary-worktree-HEAD invariant guard from spec.md
// §4.4/§5: "the primary worktree's HEAD ref must not change" during
// worktree creation. Capture before, capture after, compare.
type HeadMarker struct {
	value string
}

// CaptureHeadMarker reads repo's current HEAD marker.
func CaptureHeadMarker(repo *gitutil.Repo) (HeadMarker, error) {
	v, err := repo.HeadMarker()
	if err != nil {
		return HeadMarker{}, err
	}
	return HeadMarker{value: v}, nil
}

// AssertUnchanged re-reads repo's HEAD marker and fails closed if it
// differs from the captured value, aborting with a hard failure per
// spec.md §4.4.
func (m HeadMarker) AssertUnchanged(repo *gitutil.Repo) error {
	now, err := repo.HeadMarker()
	if err != nil {
		return err
	}
	if now != m.value {
		return edisonerrors.New(edisonerrors.KindGit, "primary worktree HEAD moved during worktree operation: was "+m.value+", now "+now).
			WithRemediation("this indicates a concurrent checkout/rebase on the primary worktree; investigate before retrying")
	}
	return nil
}

// String returns the captured marker value.
func (m HeadMarker) String() string { return m.value }
