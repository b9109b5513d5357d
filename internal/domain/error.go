package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrAlreadyTerminal    = errors.New("intent already in a terminal state")
	ErrDuplicateDelivery  = errors.New("duplicate webhook delivery")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)

// Kind classifies a payment error by how callers must react to it.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindProviderDecline   Kind = "provider_decline"
	KindProviderTransient Kind = "provider_transient"
	KindCorrelation       Kind = "correlation"
	KindIntegrity         Kind = "integrity"
	KindSessionDecrypt    Kind = "session_decrypt"
)

// Stable codes. Callers map these to localized text; never change a value once shipped.
const (
	CodeInvalidIntent        = "INVALID_INTENT"
	CodeInvalidProvider      = "INVALID_PROVIDER"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeIntentIDTooLong      = "INTENT_ID_TOO_LONG"
	CodeIntentIDNotNumeric   = "INTENT_ID_NOT_NUMERIC"
	CodeCallbackURLTooLong   = "CALLBACK_URL_TOO_LONG"
	CodeDeclined             = "DECLINED"
	CodeCancelled            = "CANCELLED"
	CodeNetworkError         = "NETWORK_ERROR"
	CodeTimeout              = "TIMEOUT"
	CodeExpired              = "EXPIRED"
	CodeProviderError        = "PROVIDER_ERROR"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeMalformedInput       = "MALFORMED_INPUT"
	CodeFieldTooLong         = "FIELD_TOO_LONG"
	CodeCardRejected         = "CARD_REJECTED"
	CodeSessionExpired       = "SESSION_EXPIRED"
	CodeIntentNotFound       = "INTENT_NOT_FOUND"
	CodeIntegrityMismatch    = "INTEGRITY_MISMATCH"
)

// Error is the normalized payment error: a kind, a stable code and a message
// that is safe to show (it never carries secrets or raw provider payloads).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and, when set on the target, by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func NewValidationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func NewDeclineError(code, msg string) *Error {
	if code == "" {
		code = CodeDeclined
	}
	return &Error{Kind: KindProviderDecline, Code: code, Message: msg}
}

func NewTransientError(msg string, err error) *Error {
	return &Error{Kind: KindProviderTransient, Code: CodeNetworkError, Message: msg, Err: err}
}

func NewCorrelationError(code, msg string) *Error {
	return &Error{Kind: KindCorrelation, Code: code, Message: msg}
}

func NewIntegrityError(msg string) *Error {
	return &Error{Kind: KindIntegrity, Code: CodeIntegrityMismatch, Message: msg}
}

// KindOf returns the kind of err, or "" when err is not a domain *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the stable code of err, or "" when err is not a domain *Error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
