// Package apperrors classifies failures into the closed taxonomy the
// lifecycle orchestrator reasons about: transient, validation, business,
// email and fatal.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind string

const (
	KindTransient  Kind = "transient"
	KindValidation Kind = "validation"
	KindBusiness   Kind = "business"
	KindEmail      Kind = "email"
	KindFatal      Kind = "fatal"
)

// Codes used across the orchestrator.
const (
	CodeDuplicateKey     = "DUPLICATE_KEY"
	CodeWriteConflict    = "WRITE_CONFLICT"
	CodeConnection       = "CONNECTION_ERROR"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodeBusinessRule     = "BUSINESS_RULE"
	CodeEmail            = "EMAIL_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeCancelled        = "OPERATION_CANCELLED"
	CodeNoParticipants   = "NO_PARTICIPANTS"
	CodeNoProblems       = "NO_PROBLEM_STATEMENTS"
	CodeInsufficient     = "INSUFFICIENT_PARTICIPANTS"
	CodeStarted          = "HACKATHON_STARTED"
	CodeInvalidTeamSize  = "INVALID_TEAM_SIZE"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeStatusChanged    = "STATUS_CHANGED"
	CodeInactive         = "HACKATHON_INACTIVE"
	CodeNotEnded         = "HACKATHON_NOT_ENDED"
	CodeRegistration     = "REGISTRATION_CLOSED"
	CodeUserBusy         = "USER_IN_OTHER_HACKATHON"
	CodeNotRetryable     = "OPERATION_NOT_RETRYABLE"
	CodeUnknownOperation = "UNKNOWN_OPERATION"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
)

// Error is a classified failure.
type Error struct {
	Kind      Kind              `json:"kind"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Step      string            `json:"step,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`

	cause error
}

func (e *Error) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s [%s/%s]: %s", e.Step, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s/%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by kind and code so callers can compare against
// sentinel values built with the constructors below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithStep returns a copy labelled with step.
func (e *Error) WithStep(step string) *Error {
	cp := *e
	cp.Step = step
	return &cp
}

func newError(kind Kind, code, msg string, retryable bool, cause error) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   msg,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// Business builds a non-retryable business-rule violation.
func Business(code, msg string) *Error {
	return newError(KindBusiness, code, msg, false, nil)
}

// Validation builds a non-retryable validation failure.
func Validation(code, msg string, details map[string]string) *Error {
	e := newError(KindValidation, code, msg, false, nil)
	e.Details = details
	return e
}

// Transient builds a retryable failure.
func Transient(code, msg string, cause error) *Error {
	return newError(KindTransient, code, msg, true, cause)
}

// Email builds a retryable delivery failure. Transports fail with network
// errors, which Classify alone would report as store connectivity.
func Email(msg string, cause error) *Error {
	return newError(KindEmail, CodeEmail, msg, true, cause)
}

// Fatal builds a non-retryable internal failure.
func Fatal(msg string, cause error) *Error {
	return newError(KindFatal, CodeInternal, msg, false, cause)
}

// As returns err as a classified error when it already is one.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err classifies to kind.
func IsKind(err error, kind Kind) bool {
	ce := Classify(err, "")
	return ce != nil && ce.Kind == kind
}

// HTTPStatus maps a classified error to a response status.
func HTTPStatus(err *Error) int {
	if err == nil {
		return http.StatusOK
	}
	switch err.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindBusiness:
		switch err.Code {
		case CodeNotFound:
			return http.StatusNotFound
		case CodeUnauthorized:
			return http.StatusUnauthorized
		case CodeForbidden:
			return http.StatusForbidden
		}
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
