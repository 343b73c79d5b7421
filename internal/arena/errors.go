package arena

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes arena errors.
type ErrorCode string

const (
	// ErrCodeQueueOverflow indicates the queue is at its configured bound.
	ErrCodeQueueOverflow ErrorCode = "QUEUE_OVERFLOW"

	// ErrCodeQueueClosed indicates the arena is shutting down.
	ErrCodeQueueClosed ErrorCode = "QUEUE_CLOSED"

	// ErrCodeSpawnConflict indicates a non-terminal specialist already
	// exists for the domain.
	ErrCodeSpawnConflict ErrorCode = "SPAWN_CONFLICT"

	// ErrCodeBenchmarkRegression indicates the compression ratio fell below
	// the minimum. The specialist is retired.
	ErrCodeBenchmarkRegression ErrorCode = "BENCHMARK_REGRESSION"

	// ErrCodePrivilegeDenied indicates the gate refused the action. State is
	// unchanged.
	ErrCodePrivilegeDenied ErrorCode = "PRIVILEGE_DENIED"

	// ErrCodeBusy indicates a lock was not acquired within its bounded wait.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeNotFound indicates an unknown task or specialist id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidTransition indicates the specialist's state does not
	// allow the requested operation.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeTrainingFailed indicates no applicable patterns were found.
	ErrCodeTrainingFailed ErrorCode = "TRAINING_FAILED"

	// ErrCodeNotCancellable indicates the task has left the queue.
	ErrCodeNotCancellable ErrorCode = "NOT_CANCELLABLE"

	// ErrCodeInvalidTask indicates a malformed task request.
	ErrCodeInvalidTask ErrorCode = "INVALID_TASK"
)

// Error is returned by arena operations. Every failure is per-operation and
// leaves prior state untouched unless the code says otherwise.
type Error struct {
	Code         ErrorCode
	Domain       string
	TaskID       TaskID
	SpecialistID SpecialistID
	ExistingID   SpecialistID
	From         SpecialistState
	To           SpecialistState
	Ratio        float64
	MinRatio     float64
	Reason       string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeQueueOverflow:
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	case ErrCodeSpawnConflict:
		return fmt.Sprintf("%s: domain %q already has specialist %s", e.Code, e.Domain, e.ExistingID)
	case ErrCodeBenchmarkRegression:
		return fmt.Sprintf("%s: specialist %s ratio %.2f below minimum %.2f", e.Code, e.SpecialistID, e.Ratio, e.MinRatio)
	case ErrCodeInvalidTransition:
		if e.To == "" {
			return fmt.Sprintf("%s: specialist %s is %s", e.Code, e.SpecialistID, e.From)
		}
		return fmt.Sprintf("%s: specialist %s cannot go from %s to %s", e.Code, e.SpecialistID, e.From, e.To)
	case ErrCodeBusy:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		if e.Reason != "" {
			return fmt.Sprintf("%s: %s", e.Code, e.Reason)
		}
		return string(e.Code)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsQueueOverflow returns true if err is a QUEUE_OVERFLOW Error.
func IsQueueOverflow(err error) bool { return hasCode(err, ErrCodeQueueOverflow) }

// IsQueueClosed returns true if err is a QUEUE_CLOSED Error.
func IsQueueClosed(err error) bool { return hasCode(err, ErrCodeQueueClosed) }

// IsSpawnConflict returns true if err is a SPAWN_CONFLICT Error.
func IsSpawnConflict(err error) bool { return hasCode(err, ErrCodeSpawnConflict) }

// IsBenchmarkRegression returns true if err is a BENCHMARK_REGRESSION Error.
func IsBenchmarkRegression(err error) bool { return hasCode(err, ErrCodeBenchmarkRegression) }

// IsPrivilegeDenied returns true if err is a PRIVILEGE_DENIED Error.
func IsPrivilegeDenied(err error) bool { return hasCode(err, ErrCodePrivilegeDenied) }

// IsBusy returns true if err is a BUSY Error.
func IsBusy(err error) bool { return hasCode(err, ErrCodeBusy) }

// IsNotFound returns true if err is a NOT_FOUND Error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsInvalidTransition returns true if err is an INVALID_TRANSITION Error.
func IsInvalidTransition(err error) bool { return hasCode(err, ErrCodeInvalidTransition) }

// IsTrainingFailed returns true if err is a TRAINING_FAILED Error.
func IsTrainingFailed(err error) bool { return hasCode(err, ErrCodeTrainingFailed) }

// IsNotCancellable returns true if err is a NOT_CANCELLABLE Error.
func IsNotCancellable(err error) bool { return hasCode(err, ErrCodeNotCancellable) }

// IsInvalidTask returns true if err is an INVALID_TASK Error.
func IsInvalidTask(err error) bool { return hasCode(err, ErrCodeInvalidTask) }

func hasCode(err error, code ErrorCode) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
