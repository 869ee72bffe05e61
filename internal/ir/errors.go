package ir

import (
	"errors"
	"fmt"
)

// Code categorizes a marketplace failure. Codes double as receipt
// statuses, so they are stable external identifiers.
type Code string

const (
	CodeZeroAddress          Code = "ZeroAddress"
	CodeUnknownToken         Code = "UnknownToken"
	CodeNotOwner             Code = "NotOwner"
	CodeAlreadyListed        Code = "AlreadyListed"
	CodeNotListed            Code = "NotListed"
	CodeSettlementInProgress Code = "SettlementInProgress"
	CodeInsufficientPayment  Code = "InsufficientPayment"
	CodeInvalidFee           Code = "InvalidFee"
	CodeCallbackUnauthorized Code = "CallbackUnauthorized"
	CodeUnknownRequest       Code = "UnknownRequest"
	CodeSettlementExpired    Code = "SettlementExpired"
	CodeUnauthorized         Code = "Unauthorized"
	CodePaused               Code = "Paused"
	CodeSelfPurchase         Code = "SelfPurchase"
	CodeUnknownMethod        Code = "UnknownMethod"
	CodeInvalidArgs          Code = "InvalidArgs"
)

// Error is a rejected marketplace operation. A transaction that fails
// with an Error leaves no state change behind.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// TokenID identifies the affected token, zero when not applicable.
	TokenID TokenID
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.TokenID != 0 {
		return fmt.Sprintf("%s: %s (token=%d)", e.Code, msg, e.TokenID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, ir.ErrNotOwner).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is. They carry no message or token.
var (
	ErrZeroAddress          = &Error{Code: CodeZeroAddress}
	ErrUnknownToken         = &Error{Code: CodeUnknownToken}
	ErrNotOwner             = &Error{Code: CodeNotOwner}
	ErrAlreadyListed        = &Error{Code: CodeAlreadyListed}
	ErrNotListed            = &Error{Code: CodeNotListed}
	ErrSettlementInProgress = &Error{Code: CodeSettlementInProgress}
	ErrInsufficientPayment  = &Error{Code: CodeInsufficientPayment}
	ErrInvalidFee           = &Error{Code: CodeInvalidFee}
	ErrCallbackUnauthorized = &Error{Code: CodeCallbackUnauthorized}
	ErrUnknownRequest       = &Error{Code: CodeUnknownRequest}
	ErrSettlementExpired    = &Error{Code: CodeSettlementExpired}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized}
	ErrPaused               = &Error{Code: CodePaused}
	ErrSelfPurchase         = &Error{Code: CodeSelfPurchase}
	ErrUnknownMethod        = &Error{Code: CodeUnknownMethod}
	ErrInvalidArgs          = &Error{Code: CodeInvalidArgs}
)

// Errorf builds an Error for a token. Pass 0 when no token applies.
func Errorf(code Code, id TokenID, format string, args ...any) *Error {
	return &Error{Code: code, TokenID: id, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from err. Returns "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsMarketError reports whether err is a business-rule rejection as
// opposed to an infrastructure failure.
func IsMarketError(err error) bool {
	return CodeOf(err) != ""
}
