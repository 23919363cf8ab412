// Package common provides shared utilities used across all features
package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a settlement or configuration failure class.
type ErrorCode string

const (
	CodeNotAuthorized          ErrorCode = "NOT_AUTHORIZED"
	CodeInvalidValue           ErrorCode = "INVALID_VALUE"
	CodeAlreadyInitialized     ErrorCode = "ALREADY_INITIALIZED"
	CodeNoTierSelected         ErrorCode = "NO_TIER_SELECTED"
	CodeTierNotLower           ErrorCode = "TIER_NOT_LOWER"
	CodeInvalidTax             ErrorCode = "INVALID_TAX"
	CodeInvalidTaxDistribution ErrorCode = "INVALID_TAX_DISTRIBUTION"
	CodeDeadlineExpired        ErrorCode = "DEADLINE_EXPIRED"
	CodeSlippage               ErrorCode = "SLIPPAGE"
	CodeExchangeFailure        ErrorCode = "EXCHANGE_FAILURE"
	CodeNoPair                 ErrorCode = "NO_PAIR"
)

// RouterError is a typed configuration or execution error. Configuration
// errors reject synchronously with no state mutated; execution errors abort
// the whole settlement.
type RouterError struct {
	Code    ErrorCode
	Message string
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewRouterError(code ErrorCode, msg string) *RouterError {
	return &RouterError{Code: code, Message: msg}
}

func ErrNotAuthorized(msg string) *RouterError {
	return NewRouterError(CodeNotAuthorized, messageOrDefault(msg, "caller is not authorized"))
}

func ErrInvalidValue(msg string) *RouterError {
	return NewRouterError(CodeInvalidValue, messageOrDefault(msg, "invalid value"))
}

func ErrAlreadyInitialized(msg string) *RouterError {
	return NewRouterError(CodeAlreadyInitialized, messageOrDefault(msg, "already initialized"))
}

func ErrNoTierSelected(msg string) *RouterError {
	return NewRouterError(CodeNoTierSelected, messageOrDefault(msg, "deposit does not match any tier"))
}

func ErrTierNotLower(msg string) *RouterError {
	return NewRouterError(CodeTierNotLower, messageOrDefault(msg, "tier fee must be strictly lower"))
}

func ErrInvalidTax(msg string) *RouterError {
	return NewRouterError(CodeInvalidTax, messageOrDefault(msg, "invalid tax configuration"))
}

func ErrInvalidTaxDistribution(msg string) *RouterError {
	return NewRouterError(CodeInvalidTaxDistribution, messageOrDefault(msg, "invalid tax distribution"))
}

func ErrDeadlineExpired(msg string) *RouterError {
	return NewRouterError(CodeDeadlineExpired, messageOrDefault(msg, "deadline expired"))
}

func ErrSlippage(msg string) *RouterError {
	return NewRouterError(CodeSlippage, messageOrDefault(msg, "output below caller bound"))
}

func ErrExchangeFailure(msg string) *RouterError {
	return NewRouterError(CodeExchangeFailure, messageOrDefault(msg, "exchange call failed"))
}

func ErrNoPair(msg string) *RouterError {
	return NewRouterError(CodeNoPair, messageOrDefault(msg, "pair does not exist"))
}

// IsCode reports whether err carries the given router error code.
func IsCode(err error, code ErrorCode) bool {
	var re *RouterError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// HTTPStatus maps a router error code to the status the API surfaces.
func HTTPStatus(err error) int {
	var re *RouterError
	if !errors.As(err, &re) {
		return http.StatusInternalServerError
	}
	switch re.Code {
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeAlreadyInitialized:
		return http.StatusConflict
	case CodeNoPair:
		return http.StatusNotFound
	case CodeExchangeFailure:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func messageOrDefault(msg string, defaultMsg string) string {
	if msg != "" {
		return msg
	}
	return defaultMsg
}
