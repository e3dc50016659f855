package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	return &Repository{
		SessionsRoot: t.TempDir(),
		States:       []string{"wip", "done", "validated"},
	}
}

func TestSessionCreateGetSave(t *testing.T) {
	repo := newTestRepository(t)
	s := NewSession("sess-1", "alice")
	require.NoError(t, repo.Create(s, "wip"))

	loaded, err := repo.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "wip", loaded.State())
	assert.Equal(t, "alice", loaded.Metadata.CreatedBy)

	loaded.LogActivity("claimed", "picked up by agent")
	require.NoError(t, repo.Save(loaded))

	reloaded, err := repo.Get("sess-1")
	require.NoError(t, err)
	require.Len(t, reloaded.ActivityLog, 1)
	assert.Equal(t, "claimed", reloaded.ActivityLog[0].Action)
}

func TestSessionMoveAcrossStates(t *testing.T) {
	repo := newTestRepository(t)
	s := NewSession("sess-2", "bob")
	require.NoError(t, repo.Create(s, "wip"))

	require.NoError(t, repo.Move("sess-2", "done"))

	loaded, err := repo.Get("sess-2")
	require.NoError(t, err)
	assert.Equal(t, "done", loaded.State())
}

func TestSessionListByState(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Create(NewSession("a", "x"), "wip"))
	require.NoError(t, repo.Create(NewSession("b", "y"), "wip"))
	require.NoError(t, repo.Create(NewSession("c", "z"), "done"))

	wip, err := repo.ListByState("wip")
	require.NoError(t, err)
	assert.Len(t, wip, 2)

	done, err := repo.ListByState("done")
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestSessionRecordTransitionLogsActivity(t *testing.T) {
	s := NewSession("sess-3", "carol")
	s.RecordTransition("wip", "done", "all tasks complete", nil)
	require.Len(t, s.ActivityLog, 1)
	assert.Equal(t, "wip->done", s.ActivityLog[0].Action)
	assert.Equal(t, "all tasks complete", s.ActivityLog[0].Detail)
}

func TestSessionGetMissingFailsClosed(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.Get("nope")
	assert.Error(t, err)
}
