// Package engineerr defines the categorized error model shared by the data
// services and the business engine.
//
// Data services fail with an *Error carrying a Kind and a machine-readable
// Code; the business engine converts these into ExecutionResults without
// crashing the session. Protocol-level failures never use this package.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy. Kinds, not Go types,
// decide how a failure is surfaced to the operator.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindBusinessLogic   Kind = "BUSINESS_LOGIC"
	KindExternalService Kind = "EXTERNAL_SERVICE"
	KindDatabase        Kind = "DATABASE"
	KindWebsocket       Kind = "WEBSOCKET"
	KindRateLimit       Kind = "RATE_LIMIT"
	KindAuthentication  Kind = "AUTHENTICATION"
	KindUnknown         Kind = "UNKNOWN"
)

// Well-known codes returned in ExecutionResult.Error. The response generator
// keys user-friendly sentences off these.
const (
	CodeCustomerNotFound        = "CUSTOMER_NOT_FOUND"
	CodeMultipleCustomers       = "MULTIPLE_CUSTOMERS"
	CodeMultiplePendingInvoices = "MULTIPLE_PENDING_INVOICES"
	CodeDuplicateFound          = "DUPLICATE_FOUND"
	CodeInsufficientStock       = "INSUFFICIENT_STOCK"
	CodeMissingPhone            = "MISSING_PHONE"
	CodeOTPSent                 = "OTP_SENT"
	CodeOTPMismatch             = "OTP_MISMATCH"
	CodeAlreadyCancelled        = "ALREADY_CANCELLED"
	CodeOpeningBalanceExists    = "OPENING_BALANCE_EXISTS"
	CodeNotAdmin                = "NOT_ADMIN"
)

// Error is a categorized failure. Data carries structured context for the
// response generator (e.g. disambiguation candidates).
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Data map[string]any
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a categorized error with a code and message.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Newf creates a categorized error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and code to an underlying error.
func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

// WithData returns a copy of e carrying structured context.
func (e *Error) WithData(data map[string]any) *Error {
	cp := *e
	cp.Data = data
	return &cp
}

// KindOf extracts the Kind of err, or KindUnknown for uncategorized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf extracts the machine-readable code of err, or "" when uncategorized.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DataOf extracts structured context attached to err, or nil.
func DataOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Data
	}
	return nil
}
