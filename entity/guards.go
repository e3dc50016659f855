package entity

// StateHolder is any entity whose lifecycle the Machine drives. Task and
// QARecord both implement it via their State/SetState methods.
type StateHolder interface {
	State() string
	SetState(string)
}

// Recorder is implemented by entities that keep a state_history log
// (spec.md §4.3 step 5). An entity that doesn't implement it transitions
// without a history entry being written.
type Recorder interface {
	RecordTransition(from, to, reason string, violations []string)
}

// GuardFunc is a pure predicate over the entity returning pass/fail
// and, on failure, a human reason recorded into the transition's violations
// list. Grounded on spec.md §4.3 step 2: "A guard is a pure predicate over
// (entity, context) returning pass/fail with a reason."
type GuardFunc func(entity StateHolder) (ok bool, reason string)

type guardKey struct{ kind, from, to, name string }

// GuardRegistry holds every registered guard, keyed by the
// (entity_kind, from, to, name) tuple named in a TransitionDef's Guards
// list.
type GuardRegistry struct {
	guards map[guardKey]GuardFunc
}

func NewGuardRegistry() *GuardRegistry {
	return &GuardRegistry{guards: map[guardKey]GuardFunc{}}
}

// Register adds a guard for the given edge under name.
func (r *GuardRegistry) Register(kind, from, to, name string, fn GuardFunc) {
	r.guards[guardKey{kind, from, to, name}] = fn
}

// Get looks up a registered guard, returning ok=false if none is
// registered under that exact (kind, from, to, name) tuple.
func (r *GuardRegistry) Get(kind, from, to, name string) (GuardFunc, bool) {
	fn, ok := r.guards[guardKey{kind, from, to, name}]
	return fn, ok
}
