package entity

// ActionFunc runs a side effect during a transition (spec.md §4.3 step 3:
// "Executes registered actions in order; any exception aborts"). Returning
// an error aborts the transition before the caller-provided mutator runs
// or the state_history entry is appended.
type ActionFunc func(entity StateHolder) error

type actionKey struct{ kind, from, to, name string }

// ActionRegistry holds every registered action, keyed by the
// (entity_kind, from, to, name) tuple named in a TransitionDef's Actions
// list.
type ActionRegistry struct {
	actions map[actionKey]ActionFunc
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: map[actionKey]ActionFunc{}}
}

// Register adds an action for the given edge under name.
func (r *ActionRegistry) Register(kind, from, to, name string, fn ActionFunc) {
	r.actions[actionKey{kind, from, to, name}] = fn
}

// Get looks up a registered action, returning ok=false if none is
// registered under that exact (kind, from, to, name) tuple.
func (r *ActionRegistry) Get(kind, from, to, name string) (ActionFunc, bool) {
	fn, ok := r.actions[actionKey{kind, from, to, name}]
	return fn, ok
}
