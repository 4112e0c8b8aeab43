package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
)

var (
	// ErrDraftNotFound is returned when a draft id is unknown or expired.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrCodeBelowMinLength gates resolver lookups on sanitized code length.
	ErrCodeBelowMinLength = errors.New("bank code below minimum length")

	// ErrRateUnavailable blocks submission when a non-reference currency has
	// no usable exchange rate yet. Distinct from ErrMarketClosed.
	ErrRateUnavailable = errors.New("exchange rate not available")

	// ErrMarketClosed is the policy block applied when the rate provider
	// reports the market closed for the currency pair.
	ErrMarketClosed = errors.New("market is closed for this currency")

	// ErrSubmissionInFlight rejects a submit while one is already loading.
	ErrSubmissionInFlight = errors.New("submission already in progress")

	// ErrAlreadySubmitted rejects a submit on a draft in the SUCCESS state.
	ErrAlreadySubmitted = errors.New("draft already submitted")

	// ErrNotRetryable rejects a retry on a draft that is not in ERROR.
	ErrNotRetryable = errors.New("draft is not in a retryable state")

	// ErrNotDismissable rejects a dismiss outside the terminal states.
	ErrNotDismissable = errors.New("draft is not in a terminal state")
)

// FieldError is a single human-readable validation failure.
type FieldError struct {
	Field   domain.FieldKey `json:"field"`
	Message string          `json:"message"`
}

// ValidationError aggregates field failures. Submission is blocked and no
// network call is made while one is outstanding.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ResolutionError wraps a bank-code lookup failure surfaced at the
// code-entry point.
type ResolutionError struct {
	Code string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unable to verify bank code %q: %v", e.Code, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// UploadError is local to the attachment step and leaves the draft intact.
type UploadError struct {
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q failed: %v", e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// SubmissionError carries the backend-provided message for the ERROR state,
// falling back to a generic network message.
type SubmissionError struct {
	Message string
	Err     error
}

const genericSubmissionMessage = "payment submission failed, please try again"

func NewSubmissionError(err error) *SubmissionError {
	msg := genericSubmissionMessage
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		msg = err.Error()
	}
	return &SubmissionError{Message: msg, Err: err}
}

func (e *SubmissionError) Error() string { return e.Message }

func (e *SubmissionError) Unwrap() error { return e.Err }
