package media

import (
	"errors"
	"fmt"
)

// Kind classifies picker failures.
type Kind string

const (
	KindUnsupportedSearch Kind = "unsupported_search"
	KindTransport         Kind = "transport_error"
	KindValidation        Kind = "validation_error"
	KindStale             Kind = "stale_result"
)

// Error is a picker failure tagged with its kind. Support names the search
// kind for unsupported_search failures.
type Error struct {
	Kind    Kind
	Support string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err is an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of err, or "" for untagged errors.
func KindOf(err error) Kind {
	var mediaErr *Error
	if errors.As(err, &mediaErr) {
		return mediaErr.Kind
	}
	return ""
}
