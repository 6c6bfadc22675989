package formula

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Every error returned by this package wraps one of them.
var (
	// ErrInvalidFormula reports a formula that cannot be parsed or uses
	// something outside the allowed grammar.
	ErrInvalidFormula = errors.New("invalid formula")
	// ErrEvaluation reports a well-formed formula that failed at evaluation
	// time (unknown variable, division by zero, ...).
	ErrEvaluation = errors.New("formula evaluation failed")
)

// Error carries the position (byte offset, -1 when unknown) of a formula problem
type Error struct {
	Kind    error
	Pos     int
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s at position %d: %s", e.Kind, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the sentinel kind
func (e *Error) Unwrap() error {
	return e.Kind
}

func syntaxError(pos int, format string, args ...any) error {
	return &Error{Kind: ErrInvalidFormula, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func evalError(format string, args ...any) error {
	return &Error{Kind: ErrEvaluation, Pos: -1, Message: fmt.Sprintf(format, args...)}
}
