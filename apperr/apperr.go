// Package apperr defines the error taxonomy shared by every service and the
// mapping of each kind to an HTTP status.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindBadRequest   Kind = "bad_request"
	KindUpstream     Kind = "upstream_error"
	KindInternal     Kind = "internal"
)

// Reasons attached to unauthorized errors so clients can tell whether a
// token refresh is worth attempting.
const (
	ReasonTokenMissing   = "token_missing"
	ReasonTokenMalformed = "token_malformed"
	ReasonTokenExpired   = "token_expired"
	ReasonTokenInvalid   = "token_invalid"
)

type Error struct {
	Kind    Kind
	Message string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithReason returns a copy of e carrying the given machine-readable reason.
func (e *Error) WithReason(reason string) *Error {
	cp := *e
	cp.Reason = reason
	return &cp
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func Unauthorized(reason, message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, Reason: reason}
}

func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

func Upstream(reason, message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Reason: reason, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal
// for anything else.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindConflict:
		return fiber.StatusConflict
	case KindBadRequest:
		return fiber.StatusBadRequest
	case KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func kindForStatus(status int) Kind {
	switch status {
	case fiber.StatusNotFound:
		return KindNotFound
	case fiber.StatusForbidden:
		return KindForbidden
	case fiber.StatusUnauthorized:
		return KindUnauthorized
	case fiber.StatusConflict:
		return KindConflict
	case fiber.StatusBadGateway, fiber.StatusGatewayTimeout:
		return KindUpstream
	}
	if status >= 400 && status < 500 {
		return KindBadRequest
	}
	return KindInternal
}
