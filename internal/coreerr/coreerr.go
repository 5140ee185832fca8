// Package coreerr defines the error-kind taxonomy shared across the analysis
// and inventory cores (spec §7). It is a thin addition over the teacher's
// plain fmt.Errorf idiom: everywhere the teacher would just wrap an error,
// the core additionally tags it with a Kind so callers (the orchestrator,
// the validator, the HTTP surface) can branch on it without string matching.
package coreerr

import "fmt"

// Kind classifies a core error for the caller. See spec.md §7.
type Kind string

const (
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindCRSUndetectable   Kind = "CRS_UNDETECTABLE"
	KindCRSMismatch       Kind = "CRS_MISMATCH"
	KindSpeciesUnknown    Kind = "SPECIES_UNKNOWN"
	KindGirthAmbiguous    Kind = "GIRTH_AMBIGUOUS"
	KindCoordsSwapped     Kind = "COORDS_SWAPPED"
	KindRangeFatal        Kind = "RANGE_FATAL"
	KindDBTransient       Kind = "DB_TRANSIENT"
	KindDBFatal           Kind = "DB_FATAL"
	KindNoOverlap         Kind = "NO_OVERLAP"
	KindNoTrees           Kind = "NO_TREES"
	KindTimedOut          Kind = "TIMED_OUT"
	KindInternal          Kind = "INTERNAL"
)

// Error wraps an underlying error with a Kind tag.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Unwrap/Is.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	if e, ok := err.(*Error); ok {
		ce = e
	} else {
		return false
	}
	return ce.Kind == kind
}
