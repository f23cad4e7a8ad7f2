// Package fault classifies errors crossing component boundaries so callers
// and the HTTP layer can react without string matching.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Internal is the zero value: an invariant broke, e.g. a version with
	// no chunk rows or a chunk with no location rows.
	Internal Kind = iota
	// Unavailable means no online node could be selected or the metadata
	// store is unreachable. Retryable after operator intervention.
	Unavailable
	// Upstream means a specific storage daemon rejected or failed a
	// put/get. Never retried automatically by the core.
	Upstream
	// NotFound: file, version, folder, user or chunk metadata is absent.
	NotFound
	// Invalid: the caller's request cannot be honored (empty upload,
	// unknown version number, bad role name).
	Invalid
	Unauthorized
	Forbidden
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Unavailable:
		return "unavailable"
	case Upstream:
		return "upstream"
	case NotFound:
		return "not found"
	case Invalid:
		return "invalid"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a classified error.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err (or anything it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf extracts the kind of the outermost classified error in err's
// chain. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}
