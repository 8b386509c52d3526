package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindInsufficientScope
	KindForbidden
	KindLimitExceeded
	KindNotFound
	KindConflict
	KindInvalidGrant
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindInsufficientScope:
		return "insufficient_scope"
	case KindForbidden:
		return "forbidden"
	case KindLimitExceeded:
		return "limit_exceeded"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidGrant:
		return "invalid_grant"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "internal"
	}
}

// Error is the domain error carried between components and recovered at the
// transport boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Message so sentinel values can be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }

func Validationf(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func Conflict(msg string, err error) *Error { return Wrap(KindConflict, msg, err) }

func Internal(msg string, err error) *Error { return Wrap(KindInternal, msg, err) }

// Messages shared by more than one component.
const (
	MsgMissingAudience      = "The audience parameter is missing."
	MsgInvalidAudience      = "The audience parameter is invalid."
	MsgUnsupportedGrantType = "The grant type is not implemented."
	MsgInsufficientScope    = "The client is not allowed to request the given scope."
	MsgLimitWithoutUser     = "The access token count limit has been reached for this client."
	MsgLimitWithUser        = "The access token count limit has been reached for this client and user."
	MsgInvalidRefreshToken  = "Invalid refresh token"
	MsgUnauthorized         = "Unauthorized"
	MsgInternal             = "Internal server error"
)

var (
	ErrUnauthorized        = New(KindAuthentication, MsgUnauthorized)
	ErrMissingAudience     = New(KindValidation, MsgMissingAudience)
	ErrInvalidAudience     = New(KindValidation, MsgInvalidAudience)
	ErrNotImplemented      = New(KindNotImplemented, MsgUnsupportedGrantType)
	ErrInsufficientScope   = New(KindInsufficientScope, MsgInsufficientScope)
	ErrLimitWithoutUser    = New(KindLimitExceeded, MsgLimitWithoutUser)
	ErrLimitWithUser       = New(KindLimitExceeded, MsgLimitWithUser)
	ErrInvalidRefreshToken = New(KindForbidden, MsgInvalidRefreshToken)
)

// KindOf reports the Kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf maps err to its HTTP status.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindValidation, KindLimitExceeded, KindConflict, KindInvalidGrant:
		return http.StatusBadRequest
	case KindAuthentication, KindInsufficientScope:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
