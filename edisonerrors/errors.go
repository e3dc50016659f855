// Package edisonerrors defines the typed error taxonomy shared by every
// Edison core package. Callers branch on Kind rather than sentinel identity,
// since most failures originate deep in a call chain (filesystem, git,
// subprocess) and need a stable, user-facing classification layered on top.
package edisonerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories from the Edison error
// taxonomy. Exit-code mapping and remediation messaging in external
// collaborators key off Kind, not the wrapped cause.
type Kind string

const (
	// KindPathResolution indicates the project root could not be determined
	// or resolved to a forbidden location.
	KindPathResolution Kind = "path_resolution"

	// KindConfig indicates malformed YAML or a missing required config key.
	KindConfig Kind = "config"

	// KindTemplate indicates an unknown composition function, invalid
	// conditional expression, or unresolved required include.
	KindTemplate Kind = "template"

	// KindEntityNotFound indicates an entity id does not map to a file.
	KindEntityNotFound Kind = "entity_not_found"

	// KindPersistence indicates a parse failure, invalid frontmatter, a
	// legacy-format file loaded directly, a lock timeout, or a cross-device
	// rename failure.
	KindPersistence Kind = "persistence"

	// KindTransitionBlocked indicates a guard or action refused a state
	// transition.
	KindTransitionBlocked Kind = "transition_blocked"

	// KindGit indicates a git subprocess failed or violated an invariant
	// (e.g. the primary worktree's HEAD moved).
	KindGit Kind = "git"

	// KindValidator indicates a validator engine subprocess failed or timed
	// out.
	KindValidator Kind = "validator"
)

// Error is the concrete error type returned by Edison core packages. It
// carries a Kind for classification, a one-line human description, an
// optional remediation hint, and an optional list of guard/action violations
// (populated only for KindTransitionBlocked).
type Error struct {
	Kind        Kind
	Message     string
	Remediation string
	Violations  []string
	cause       error
}

// New creates an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping cause. If cause is nil,
// Wrap returns nil, allowing the common `return Wrap(Kind, msg, err)` idiom
// to propagate a nil error untouched.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithRemediation attaches a remediation hint (a command or config key that
// would fix the error) and returns the receiver for chaining.
func (e *Error) WithRemediation(hint string) *Error {
	e.Remediation = hint
	return e
}

// WithViolations attaches guard/action violation reasons and returns the
// receiver for chaining. Used exclusively for KindTransitionBlocked.
func (e *Error) WithViolations(violations ...string) *Error {
	e.Violations = violations
	return e
}

// Error implements the error interface with a one-line human description,
// including the remediation hint when present.
func (e *Error) Error() string {
	msg := e.Message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	if e.Remediation != "" {
		msg = fmt.Sprintf("%s (try: %s)", msg, e.Remediation)
	}
	return msg
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Kind, letting callers
// write errors.Is(err, edisonerrors.New(edisonerrors.KindEntityNotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Of reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is classified under the given kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
