package vault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable failure code carried by a failed action.
type Code string

const (
	// CodeNotFound: a referenced brand, product or auction does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeUnauthorized: the caller lacks the ownership or role the action needs.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeAlreadyExists: the action would duplicate unique state.
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	// CodeInvalidState: the target's current state disallows the action.
	CodeInvalidState Code = "INVALID_STATE"
	// CodeInvalidInput: an argument is out of range or malformed.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeInsufficientFunds: the value transfer behind the action failed.
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
)

// HTTPStatus maps a code to the status used by the HTTP gateway.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeAlreadyExists, CodeInvalidState:
		return http.StatusConflict
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// Error is the failure result of an action.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
}

// Sentinels for errors.Is; they match any Error with the same code.
var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrAlreadyExists     = &Error{Code: CodeAlreadyExists}
	ErrInvalidState      = &Error{Code: CodeInvalidState}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds}
)

// NewError builds an Error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches sentinel errors (no message) by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
