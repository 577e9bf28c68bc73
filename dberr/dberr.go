// Package dberr defines the error taxonomy shared by every layer of
// the object database: a small set of kinds callers can switch on
// with errors.Is/errors.As, independent of which backend or parser
// produced the error.
package dberr

import (
	"errors"
	"fmt"
)

// Kind classifies an error without naming the component that raised
// it. Kind is deliberately coarse: callers branch on it to decide
// whether to retry a different backend, surface the error verbatim, or
// treat it as success.
type Kind int

const (
	// NotFound means no backend had the requested digest or ref.
	NotFound Kind = iota
	// InvalidInput means the caller supplied malformed data: bad hex,
	// a payload that doesn't match its declared kind, a rule
	// violation in a name.
	InvalidInput
	// Corruption means stored data failed to verify: digest mismatch,
	// bad inflate, bad pack index, unresolvable delta, header parse
	// failure.
	Corruption
	// IOError means the underlying I/O seam failed.
	IOError
	// Unsupported means the operation isn't available on this
	// backend (a write to a read-only backend) or the data uses an
	// unsupported format version.
	Unsupported
	// Conflict means a write discovered pre-existing identical
	// content. The ODB treats this as success; it is exposed here so
	// a backend can report it up without deciding the policy itself.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case InvalidInput:
		return "invalid input"
	case Corruption:
		return "corruption"
	case IOError:
		return "i/o error"
	case Unsupported:
		return "unsupported"
	case Conflict:
		return "conflict"
	default:
		return "unknown error"
	}
}

// Error is a kind-tagged error. Op names the failing operation
// ("loose.Read", "pack.index.lookup", ...) and Err, if non-nil, is the
// underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, dberr.New(dberr.NotFound, "", nil)) works without
// callers having to know the Op or Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New constructs an *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err if it is (or wraps) a *dberr.Error, and
// ok=false otherwise.
func Of(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
