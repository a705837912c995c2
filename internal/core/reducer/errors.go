package reducer

import (
	"errors"
	"fmt"

	"github.com/switchboardhq/supervisor/internal/core/ids"
)

// Kind classifies why the reducer rejected an intent.
type Kind string

const (
	// KindMalformedIntent marks an intent whose shape or argument values are
	// invalid on their face, independent of current state.
	KindMalformedIntent Kind = "malformed_intent"
	// KindInvariantViolation marks an intent that is well-formed but would
	// violate a structural invariant of the current state (e.g. a dangling
	// reference, a cross-profile move).
	KindInvariantViolation Kind = "invariant_violation"
)

// Error is the reducer's total error type: every rejected intent carries a
// Kind, and rejection never leaves a partially mutated state behind.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func malformed(format string, args ...interface{}) error {
	return &Error{Kind: KindMalformedIntent, msg: fmt.Sprintf(format, args...)}
}

func invariant(format string, args ...interface{}) error {
	return &Error{Kind: KindInvariantViolation, msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind carried by err, and false if err is not (and
// does not wrap) a reducer *Error.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

func errProfileNotFound(id ids.ProfileID) error {
	return invariant("profile %s not found", id)
}

func errWorkspaceNotFound(id ids.WorkspaceID) error {
	return invariant("workspace %s not found", id)
}

func errTabNotFound(id ids.TabID) error {
	return invariant("tab %s not found", id)
}
