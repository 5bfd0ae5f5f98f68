package platform

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a platform error so the reconciler can branch on it
// without inspecting transport details.
type ErrorKind int

const (
	// KindUnknown is an error the client could not classify.
	KindUnknown ErrorKind = iota
	// KindNotFound means a name or GUID lookup matched nothing. It is the
	// trigger for the creation branch, not a failure.
	KindNotFound
	// KindAmbiguousMatch means a name lookup matched more than one entity.
	// Always a hard failure; the provisioner never silently picks one.
	KindAmbiguousMatch
	// KindTransient covers network failures and 5xx responses. Safe to retry.
	KindTransient
	// KindAuth covers rejected or expired credentials.
	KindAuth
	// KindValidation means the platform rejected a write as malformed.
	KindValidation
	// KindConflict means the entity already exists or the write raced with
	// another one.
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAmbiguousMatch:
		return "ambiguous_match"
	case KindTransient:
		return "transient"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged platform error. Op names the client operation that
// failed ("create_space"), Err holds the underlying cause when there is one.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a kind-tagged error.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError builds a kind-tagged error around an underlying cause.
func WrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: "platform call failed", Err: err}
}

// KindOf extracts the kind from an error chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool       { return KindOf(err) == KindNotFound }
func IsAmbiguousMatch(err error) bool { return KindOf(err) == KindAmbiguousMatch }
func IsTransient(err error) bool      { return KindOf(err) == KindTransient }
func IsAuth(err error) bool           { return KindOf(err) == KindAuth }
func IsConflict(err error) bool       { return KindOf(err) == KindConflict }
