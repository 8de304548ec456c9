// Package fault classifies the errors shipcheck can raise so adapters can decide
// whether a failure aborts a run, is recorded, or is only logged.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies an error class.
type Kind string

const (
	// Config errors are fatal and abort before any checker runs.
	Config Kind = "CONFIG_ERROR"
	// CheckFail marks a check that completed with its condition unmet.
	CheckFail Kind = "CHECK_FAIL"
	// CheckError marks a check that could not complete.
	CheckError Kind = "CHECK_ERROR"
	// EvidenceWrite marks an artifact that could not be persisted.
	EvidenceWrite Kind = "EVIDENCE_WRITE_ERROR"
	// Transport marks a chat-bot send or receive failure.
	Transport Kind = "TRANSPORT_ERROR"
)

// Error is an error tagged with its Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Wrap tags err with kind. It returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a tagged error from a format string.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
