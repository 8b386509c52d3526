package errors

import (
	"errors"
	"fmt"
)

// OAuth2Error represents a standardized OAuth 2.0 error
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes
const (
	InvalidRequest       = "invalid_request"
	UnauthorizedClient   = "unauthorized_client"
	AccessDenied         = "access_denied"
	UnsupportedGrantType = "unsupported_grant_type"
	InvalidScope         = "invalid_scope"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	ServerError          = "server_error"
	NotFoundCode         = "not_found"
	LimitExceededCode    = "limit_exceeded"
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{Code: AccessDenied, Description: description}
}

// ToOAuth2 renders err as the wire error. Internal errors never expose their
// detail.
func ToOAuth2(err error) *OAuth2Error {
	var e *Error
	if !errors.As(err, &e) {
		return NewServerError(MsgInternal)
	}

	switch e.Kind {
	case KindValidation, KindConflict:
		return &OAuth2Error{Code: InvalidRequest, Description: e.Message}
	case KindAuthentication:
		return &OAuth2Error{Code: InvalidClient, Description: e.Message}
	case KindInsufficientScope:
		return &OAuth2Error{Code: InvalidScope, Description: e.Message}
	case KindForbidden, KindInvalidGrant:
		return &OAuth2Error{Code: InvalidGrant, Description: e.Message}
	case KindLimitExceeded:
		return &OAuth2Error{Code: LimitExceededCode, Description: e.Message}
	case KindNotFound:
		return &OAuth2Error{Code: NotFoundCode, Description: e.Message}
	case KindNotImplemented:
		return &OAuth2Error{Code: UnsupportedGrantType, Description: e.Message}
	default:
		return NewServerError(MsgInternal)
	}
}
