package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Category is the closed set of provider failure classes shown to users.
type Category string

const (
	CategoryTimeout           Category = "timeout"
	CategoryNotConfigured     Category = "not_configured"
	CategoryUnauthorized      Category = "unauthorized"
	CategoryInsufficientFunds Category = "insufficient_funds"
	CategoryQuoteExpired      Category = "quote_expired"
	CategoryReverted          Category = "reverted"
	CategoryUnsupported       Category = "unsupported"
	CategoryInvalidRequest    Category = "invalid_request"
	CategoryUpstream          Category = "upstream"
)

// Error is a classified provider failure.
type Error struct {
	Backend  string
	Op       string
	Category Category
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Backend, e.Op, e.Category)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(backend, op string, category Category, err error) *Error {
	return &Error{Backend: backend, Op: op, Category: category, Err: err}
}

// Classify wraps any error as *Error. Already classified errors keep their
// category; deadline errors become timeouts; everything else is upstream.
func Classify(backend, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(backend, op, CategoryTimeout, err)
	}
	return NewError(backend, op, CategoryUpstream, err)
}

// CategoryOf returns the category of err, or upstream when it is unclassified.
func CategoryOf(err error) Category {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	return CategoryUpstream
}

// CategoryForStatus maps an HTTP response status to a category.
func CategoryForStatus(status int) Category {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryUnauthorized
	case status == http.StatusPaymentRequired:
		return CategoryInsufficientFunds
	case status == http.StatusGone:
		return CategoryQuoteExpired
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CategoryTimeout
	case status == http.StatusNotImplemented:
		return CategoryUnsupported
	case status >= 400 && status < 500:
		return CategoryInvalidRequest
	default:
		return CategoryUpstream
	}
}

// UserMessage renders err for the person chatting. label names the
// provider, e.g. "Wallet" or "Cashout".
func UserMessage(err error, label string) string {
	switch CategoryOf(err) {
	case CategoryTimeout:
		return label + " is taking too long right now. Please retry in a moment."
	case CategoryNotConfigured:
		return label + " live mode is not fully configured."
	case CategoryUnauthorized:
		return label + " credentials were rejected."
	case CategoryInsufficientFunds:
		return label + " reports insufficient funds for this request."
	case CategoryQuoteExpired:
		return label + " quote expired. Please request a fresh quote and confirm again."
	case CategoryReverted:
		return label + " transaction reverted onchain. Please retry with a smaller amount or refresh quote."
	case CategoryUnsupported:
		return label + " does not support this request yet."
	case CategoryInvalidRequest:
		return label + " rejected the request. Please check the details and retry."
	}
	return label + " request failed. Please retry."
}
