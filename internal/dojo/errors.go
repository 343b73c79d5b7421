package dojo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/lock"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// CodeInternal is reported for errors that carry no domain code.
const CodeInternal = "INTERNAL"

// Escalation codes. The privilege package reports these as sentinels.
const (
	CodeInvalidEscalation = "INVALID_ESCALATION"
	CodeEscalationDecided = "ESCALATION_DECIDED"
)

// ErrorCode returns the machine-readable code of a domain error, or
// CodeInternal when err carries none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var ve *pattern.ValidationError
	if errors.As(err, &ve) {
		return string(ve.Code)
	}
	var le *graph.LinkError
	if errors.As(err, &le) {
		return string(le.Code)
	}
	var ae *arena.Error
	if errors.As(err, &ae) {
		return string(ae.Code)
	}
	if privilege.IsDenied(err) {
		return string(arena.ErrCodePrivilegeDenied)
	}
	if lock.IsBusy(err) {
		return string(arena.ErrCodeBusy)
	}
	switch {
	case pattern.IsNotFound(err), errors.Is(err, privilege.ErrEscalationNotFound):
		return string(arena.ErrCodeNotFound)
	case errors.Is(err, privilege.ErrInvalidEscalation):
		return CodeInvalidEscalation
	case errors.Is(err, privilege.ErrEscalationDecided):
		return CodeEscalationDecided
	}
	return CodeInternal
}

// IsUserError reports whether err was caused by the request rather than by
// the system. Busy and internal failures are not user errors.
func IsUserError(err error) bool {
	switch ErrorCode(err) {
	case "", CodeInternal, string(arena.ErrCodeBusy):
		return false
	}
	return true
}

// ParsePatternID accepts "P12" or "12".
func ParsePatternID(s string) (pattern.ID, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "P")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid pattern id %q", s)
	}
	return pattern.ID(n), nil
}
