package pattern

import (
	"errors"
	"fmt"
)

// ValidationErrorCode categorizes ingestion failures.
type ValidationErrorCode string

const (
	// ErrCodeDuplicate indicates the field already holds an equal payload.
	ErrCodeDuplicate ValidationErrorCode = "DUPLICATE"

	// ErrCodeMalformedPayload indicates an empty payload or a failed predicate.
	ErrCodeMalformedPayload ValidationErrorCode = "MALFORMED_PAYLOAD"

	// ErrCodeUnknownField indicates the field has no registered validator.
	ErrCodeUnknownField ValidationErrorCode = "UNKNOWN_FIELD"
)

// ValidationError is returned by Ingest when a payload is not accepted.
// It never indicates a fault in the store itself.
type ValidationError struct {
	Code  ValidationErrorCode
	Field Field

	// Reason is a human-readable description.
	Reason string

	// ExistingID is set for duplicates and points at the accepted pattern.
	ExistingID ID

	// RejectedID is set when a predicate failure was recorded as a
	// Rejected pattern.
	RejectedID ID
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch {
	case e.Code == ErrCodeDuplicate:
		return fmt.Sprintf("%s: %s (field=%s, existing=%s)", e.Code, e.Reason, e.Field, e.ExistingID)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Reason, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
}

// IsDuplicate returns true if err is a duplicate-payload ValidationError.
func IsDuplicate(err error) bool {
	return hasCode(err, ErrCodeDuplicate)
}

// IsMalformed returns true if err is a malformed-payload ValidationError.
func IsMalformed(err error) bool {
	return hasCode(err, ErrCodeMalformedPayload)
}

// IsUnknownField returns true if err is an unknown-field ValidationError.
func IsUnknownField(err error) bool {
	return hasCode(err, ErrCodeUnknownField)
}

func hasCode(err error, code ValidationErrorCode) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}

// NotFoundError is returned when a pattern id is unknown.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pattern %s not found", e.ID)
}

// IsNotFound returns true if err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
