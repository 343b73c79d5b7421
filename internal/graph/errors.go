package graph

import (
	"errors"
	"fmt"

	"github.com/roach88/dojo/internal/pattern"
)

// LinkErrorCode categorizes refused links.
type LinkErrorCode string

const (
	// ErrCodeUnknownPattern indicates an endpoint does not exist.
	ErrCodeUnknownPattern LinkErrorCode = "UNKNOWN_PATTERN"

	// ErrCodeNotValidated indicates an endpoint exists but is not Validated.
	ErrCodeNotValidated LinkErrorCode = "NOT_VALIDATED"

	// ErrCodeInvalidWeight indicates a negative, NaN or infinite weight.
	ErrCodeInvalidWeight LinkErrorCode = "INVALID_WEIGHT"

	// ErrCodeUnknownKind indicates an unrecognized relationship kind.
	ErrCodeUnknownKind LinkErrorCode = "UNKNOWN_KIND"
)

// LinkError is returned when a relationship is refused. Nothing is recorded.
type LinkError struct {
	Code    LinkErrorCode
	Pattern pattern.ID
	Status  pattern.Status
	Kind    Kind
	Weight  float64
}

// Error implements the error interface.
func (e *LinkError) Error() string {
	switch e.Code {
	case ErrCodeUnknownPattern:
		return fmt.Sprintf("%s: pattern %s does not exist", e.Code, e.Pattern)
	case ErrCodeNotValidated:
		return fmt.Sprintf("%s: pattern %s is %s", e.Code, e.Pattern, e.Status)
	case ErrCodeInvalidWeight:
		return fmt.Sprintf("%s: weight %v must be finite and non-negative", e.Code, e.Weight)
	case ErrCodeUnknownKind:
		return fmt.Sprintf("%s: %q is not a relationship kind", e.Code, e.Kind)
	default:
		return string(e.Code)
	}
}

// IsUnknownPattern returns true if err is an UNKNOWN_PATTERN LinkError.
func IsUnknownPattern(err error) bool {
	return hasCode(err, ErrCodeUnknownPattern)
}

// IsNotValidated returns true if err is a NOT_VALIDATED LinkError.
func IsNotValidated(err error) bool {
	return hasCode(err, ErrCodeNotValidated)
}

// IsInvalidWeight returns true if err is an INVALID_WEIGHT LinkError.
func IsInvalidWeight(err error) bool {
	return hasCode(err, ErrCodeInvalidWeight)
}

// IsUnknownKind returns true if err is an UNKNOWN_KIND LinkError.
func IsUnknownKind(err error) bool {
	return hasCode(err, ErrCodeUnknownKind)
}

func hasCode(err error, code LinkErrorCode) bool {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}
