package entity

import (
	"context"
	"fmt"

	"github.com/qmuntal/stateless"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
)

// TransitionDef is one permitted edge in an entity kind's state DAG, loaded
// from YAML config per spec.md §9's open-question decision (no hardcoded
// transition tables; see DESIGN.md).
type TransitionDef struct {
	From    string   `yaml:"from"`
	To      string   `yaml:"to"`
	Guards  []string `yaml:"guards,omitempty"`
	Actions []string `yaml:"actions,omitempty"`
}

// TransitionSpec is the full state-machine definition for one entity kind:
// its state set, initial state, and permitted transitions.
type TransitionSpec struct {
	Kind        string          `yaml:"kind"`
	States      []string        `yaml:"states"`
	Initial     string          `yaml:"initial"`
	Transitions []TransitionDef `yaml:"transitions"`
}

func (s TransitionSpec) hasState(name string) bool {
	for _, st := range s.States {
		if st == name {
			return true
		}
	}
	return false
}

// Machine drives one entity kind's lifecycle, built fresh from a loaded
// TransitionSpec instead of a hardcoded Go switch, per spec.md §4.3's state
// machine contract. It wraps github.com/qmuntal/stateless, configuring one
// Permit per TransitionDef with the trigger string "<from>-><to>" (unique
// per edge, so OnEntryFrom action hooks never collide across edges that
// happen to share a target state).
type Machine struct {
	kind    string
	spec    TransitionSpec
	guards  *GuardRegistry
	actions *ActionRegistry

	current    StateHolder
	violations []string
}

func edgeTrigger(from, to string) string { return from + "->" + to }

// NewMachine builds a Machine for kind from spec, wiring guards/actions from
// the given registries. It fails closed if spec names a transition whose
// from/to state isn't in its own States list, or whose Guards name a guard
// nothing registered (spec.md §4.3 step 1, enforced at construction rather
// than per-Fire since the DAG is static once loaded).
func NewMachine(kind string, spec TransitionSpec, guards *GuardRegistry, actions *ActionRegistry) (*Machine, error) {
	if !spec.hasState(spec.Initial) {
		return nil, edisonerrors.New(edisonerrors.KindConfig, fmt.Sprintf("%s: initial state %q is not in states list", kind, spec.Initial))
	}
	for _, t := range spec.Transitions {
		if !spec.hasState(t.From) || !spec.hasState(t.To) {
			return nil, edisonerrors.New(edisonerrors.KindConfig, fmt.Sprintf("%s: transition %s->%s references an undeclared state", kind, t.From, t.To))
		}
	}

	m := &Machine{kind: kind, spec: spec, guards: guards, actions: actions}
	if _, err := m.buildStateMachine(spec.Initial); err != nil {
		return nil, err
	}
	return m, nil
}

// buildStateMachine constructs a stateless.StateMachine positioned at
// initial and wired with every transition's guards/actions. stateless
// tracks "current state" as a field internal to the instance it's built
// with, so a single long-lived instance pinned at spec.Initial can never
// correctly serve entities sitting at any other state. Machine is shared
// across every entity of a kind (unlike the teacher's one-machine-per-project
// cli/internal/statechart.Machine), so rather than position one instance at
// construction the way the teacher's NewMachineAt does, Machine rebuilds a
// fresh instance positioned at the entity's actual state on every call.
func (m *Machine) buildStateMachine(initial string) (*stateless.StateMachine, error) {
	sm := stateless.NewStateMachine(initial)

	for _, t := range m.spec.Transitions {
		trigger := edgeTrigger(t.From, t.To)

		guardFns := make([]func(context.Context, ...any) bool, 0, len(t.Guards))
		for _, name := range t.Guards {
			gf, ok := m.guards.Get(m.kind, t.From, t.To, name)
			if !ok {
				return nil, edisonerrors.New(edisonerrors.KindConfig, fmt.Sprintf("%s: transition %s->%s references unregistered guard %q", m.kind, t.From, t.To, name))
			}
			guardFns = append(guardFns, m.wrapGuard(gf, name))
		}

		sm.Configure(t.From).Permit(trigger, t.To, guardFns...)

		if len(t.Actions) > 0 {
			names := t.Actions
			sm.Configure(t.To).OnEntryFrom(trigger, m.wrapActions(m.kind, t.From, t.To, names))
		}
	}

	return sm, nil
}

func (m *Machine) wrapGuard(fn GuardFunc, name string) func(context.Context, ...any) bool {
	return func(_ context.Context, _ ...any) bool {
		ok, reason := fn(m.current)
		if !ok {
			if reason == "" {
				reason = name + " failed"
			}
			m.violations = append(m.violations, reason)
		}
		return ok
	}
}

func (m *Machine) wrapActions(kind, from, to string, names []string) func(context.Context, ...any) error {
	return func(_ context.Context, _ ...any) error {
		for _, name := range names {
			fn, ok := m.actions.Get(kind, from, to, name)
			if !ok {
				return edisonerrors.New(edisonerrors.KindConfig, fmt.Sprintf("%s: transition %s->%s references unregistered action %q", kind, from, to, name))
			}
			if err := fn(m.current); err != nil {
				return edisonerrors.Wrap(edisonerrors.KindTransitionBlocked, fmt.Sprintf("action %q failed on %s->%s", name, from, to), err)
			}
		}
		return nil
	}
}

// Transition drives entity from its current State() to to: validates the
// edge is defined, runs guards, runs actions, applies mutate (if non-nil),
// sets the new state, and appends a state_history entry via Recorder if the
// entity implements it. Matches spec.md §4.3 steps 1-5; the file rename
// (step 6) is the repository's responsibility, invoked only after this
// succeeds.
func (m *Machine) Transition(entity StateHolder, to, reason string, mutate func()) error {
	from := entity.State()
	trigger := edgeTrigger(from, to)

	sm, err := m.buildStateMachine(from)
	if err != nil {
		return err
	}

	m.current = entity
	m.violations = nil

	can, err := sm.CanFire(trigger)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindTransitionBlocked, fmt.Sprintf("%s: check transition %s->%s", m.kind, from, to), err)
	}
	if !can {
		return edisonerrors.New(edisonerrors.KindTransitionBlocked, fmt.Sprintf("%s: transition %s->%s is not permitted", m.kind, from, to))
	}

	if err := sm.Fire(trigger); err != nil {
		violations := m.violations
		m.current = nil
		return edisonerrors.Wrap(edisonerrors.KindTransitionBlocked, fmt.Sprintf("%s: transition %s->%s blocked", m.kind, from, to), err).
			WithViolations(violations...)
	}

	if mutate != nil {
		mutate()
	}
	entity.SetState(to)
	if rec, ok := entity.(Recorder); ok {
		rec.RecordTransition(from, to, reason, m.violations)
	}

	m.current = nil
	return nil
}

// CanTransition reports whether from the entity's current state, to is
// reachable and its guards currently pass, without mutating anything.
func (m *Machine) CanTransition(entity StateHolder, to string) (bool, error) {
	from := entity.State()
	sm, err := m.buildStateMachine(from)
	if err != nil {
		return false, err
	}

	m.current = entity
	defer func() { m.current = nil }()
	can, err := sm.CanFire(edgeTrigger(from, to))
	if err != nil {
		return false, edisonerrors.Wrap(edisonerrors.KindTransitionBlocked, "check transition", err)
	}
	return can, nil
}

// PermittedStates returns every state currently reachable from entity's
// state.
func (m *Machine) PermittedStates(entity StateHolder) ([]string, error) {
	sm, err := m.buildStateMachine(entity.State())
	if err != nil {
		return nil, err
	}

	m.current = entity
	defer func() { m.current = nil }()

	triggers, err := sm.PermittedTriggers()
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindTransitionBlocked, "list permitted triggers", err)
	}
	states := make([]string, 0, len(triggers))
	for _, t := range m.spec.Transitions {
		want := edgeTrigger(t.From, t.To)
		for _, active := range triggers {
			if fmt.Sprint(active) == want {
				states = append(states, t.To)
			}
		}
	}
	return states, nil
}
