// Package domainerrors carries the error taxonomy for the custody protocol.
//
// Services return these errors; stores return pkg/platform/sentinel errors
// which services translate. Transport maps codes to HTTP statuses via
// ToHTTPStatus so the wire contract stays in one place.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure independent of transport.
type Code string

const (
	// CodeNotFound: the product, batch, partnership or organization does not exist.
	CodeNotFound Code = "not_found"
	// CodeForbidden: caller is not the current custodian / not the receiver.
	CodeForbidden Code = "forbidden"
	// CodeUnauthorizedPartner: no accepted partnership covers the org pair.
	CodeUnauthorizedPartner Code = "unauthorized_partner"
	// CodeInvalidState: terminal or already-consumed state (verified item,
	// duplicate accept, duplicate proof).
	CodeInvalidState Code = "invalid_state"
	// CodeConflict: duplicate active partnership for the unordered pair.
	CodeConflict Code = "conflict"
	// CodeInvalidArgument: quantity out of bounds, empty batch, malformed input.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeLedgerTimeout: anchor not confirmed in time; retryable with the
	// same idempotency key.
	CodeLedgerTimeout Code = "ledger_timeout"
	// CodeLedgerMismatch: mirror and ledger disagree; requires reconciliation
	// and is never resolved silently in favor of the mirror.
	CodeLedgerMismatch Code = "ledger_mismatch"

	CodeBadRequest      Code = "bad_request"
	CodeUnauthenticated Code = "unauthenticated"
	CodeInternal        Code = "internal_error"
)

// Error pairs a Code with a human-readable message.
type Error struct {
	Code    Code
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New constructs a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, wrapped: cause}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden, CodeUnauthorizedPartner:
		return http.StatusForbidden
	case CodeInvalidState, CodeConflict:
		return http.StatusConflict
	case CodeInvalidArgument, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeLedgerTimeout:
		return http.StatusGatewayTimeout
	case CodeLedgerMismatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
