package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	state   string
	history []StateHistoryEntry
}

func (f *fakeTask) State() string       { return f.state }
func (f *fakeTask) SetState(s string)    { f.state = s }
func (f *fakeTask) RecordTransition(from, to, reason string, violations []string) {
	f.history = append(f.history, StateHistoryEntry{From: from, To: to, Reason: reason, Violations: violations})
}

func taskSpec() TransitionSpec {
	return TransitionSpec{
		Kind:    "task",
		States:  []string{"todo", "wip", "done", "blocked"},
		Initial: "todo",
		Transitions: []TransitionDef{
			{From: "todo", To: "wip", Guards: []string{"hasOwner"}},
			{From: "wip", To: "done"},
			{From: "wip", To: "blocked"},
			{From: "blocked", To: "wip"},
		},
	}
}

func TestMachineTransitionSucceeds(t *testing.T) {
	guards := NewGuardRegistry()
	guards.Register("task", "todo", "wip", "hasOwner", func(StateHolder) (bool, string) { return true, "" })
	actions := NewActionRegistry()

	m, err := NewMachine("task", taskSpec(), guards, actions)
	require.NoError(t, err)

	task := &fakeTask{state: "todo"}
	require.NoError(t, m.Transition(task, "wip", "claimed", nil))
	assert.Equal(t, "wip", task.State())
	require.Len(t, task.history, 1)
	assert.Equal(t, "todo", task.history[0].From)
	assert.Equal(t, "wip", task.history[0].To)
}

func TestMachineTransitionBlockedByGuard(t *testing.T) {
	guards := NewGuardRegistry()
	guards.Register("task", "todo", "wip", "hasOwner", func(StateHolder) (bool, string) { return false, "no owner assigned" })
	actions := NewActionRegistry()

	m, err := NewMachine("task", taskSpec(), guards, actions)
	require.NoError(t, err)

	task := &fakeTask{state: "todo"}
	err = m.Transition(task, "wip", "claim", nil)
	assert.Error(t, err)
	assert.Equal(t, "todo", task.State(), "state must not change on a blocked transition")
	assert.Empty(t, task.history)
}

func TestMachineRejectsUndefinedTransition(t *testing.T) {
	guards := NewGuardRegistry()
	actions := NewActionRegistry()
	m, err := NewMachine("task", taskSpec(), guards, actions)
	require.NoError(t, err)

	task := &fakeTask{state: "todo"}
	err = m.Transition(task, "done", "skip ahead", nil)
	assert.Error(t, err)
}

func TestMachineActionFailureAbortsTransition(t *testing.T) {
	guards := NewGuardRegistry()
	actions := NewActionRegistry()
	actions.Register("task", "wip", "done", "finalize", func(StateHolder) error {
		return assert.AnError
	})

	spec := taskSpec()
	for i := range spec.Transitions {
		if spec.Transitions[i].From == "wip" && spec.Transitions[i].To == "done" {
			spec.Transitions[i].Actions = []string{"finalize"}
		}
	}
	m, err := NewMachine("task", spec, guards, actions)
	require.NoError(t, err)

	task := &fakeTask{state: "wip"}
	err = m.Transition(task, "done", "complete", nil)
	assert.Error(t, err)
	assert.Equal(t, "wip", task.State())
}

func TestMachineCanTransitionAndPermittedStates(t *testing.T) {
	guards := NewGuardRegistry()
	actions := NewActionRegistry()
	m, err := NewMachine("task", taskSpec(), guards, actions)
	require.NoError(t, err)

	task := &fakeTask{state: "wip"}
	can, err := m.CanTransition(task, "done")
	require.NoError(t, err)
	assert.True(t, can)

	states, err := m.PermittedStates(task)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"done", "blocked"}, states)
}

func TestMachineIsReusableAcrossEntitiesAtDifferentStates(t *testing.T) {
	guards := NewGuardRegistry()
	guards.Register("task", "todo", "wip", "hasOwner", func(StateHolder) (bool, string) { return true, "" })
	actions := NewActionRegistry()
	m, err := NewMachine("task", taskSpec(), guards, actions)
	require.NoError(t, err)

	atTodo := &fakeTask{state: "todo"}
	can, err := m.CanTransition(atTodo, "wip")
	require.NoError(t, err)
	assert.True(t, can)

	atWip := &fakeTask{state: "wip"}
	require.NoError(t, m.Transition(atWip, "done", "complete", nil))
	assert.Equal(t, "done", atWip.State())

	atBlocked := &fakeTask{state: "blocked"}
	states, err := m.PermittedStates(atBlocked)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wip"}, states)
}

func TestNewMachineRejectsUndeclaredState(t *testing.T) {
	spec := TransitionSpec{
		Kind:    "task",
		States:  []string{"todo", "wip"},
		Initial: "todo",
		Transitions: []TransitionDef{
			{From: "wip", To: "done"}, // "done" not declared
		},
	}
	_, err := NewMachine("task", spec, NewGuardRegistry(), NewActionRegistry())
	assert.Error(t, err)
}
