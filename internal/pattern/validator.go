package pattern

import (
	"fmt"
	"sort"
	"strings"
)

// Validator is the field-specific validation predicate supplied by the
// discovery engine. A non-nil error rejects the payload.
type Validator interface {
	Validate(payload string) error
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(payload string) error

// Validate calls f(payload).
func (f ValidatorFunc) Validate(payload string) error {
	return f(payload)
}

// AcceptAll is the predicate used for fields registered without one.
var AcceptAll Validator = ValidatorFunc(func(string) error { return nil })

// Registry maps every known field to its predicate. A field absent from
// the registry is unknown to the store.
type Registry map[Field]Validator

// NewRegistry registers fields with the AcceptAll predicate.
func NewRegistry(fields ...Field) Registry {
	r := make(Registry, len(fields))
	for _, f := range fields {
		r[f] = AcceptAll
	}
	return r
}

// With returns a copy of r with field bound to v.
func (r Registry) With(field Field, v Validator) Registry {
	out := make(Registry, len(r)+1)
	for f, existing := range r {
		out[f] = existing
	}
	if v == nil {
		v = AcceptAll
	}
	out[field] = v
	return out
}

// Fields returns the registered fields in sorted order.
func (r Registry) Fields() []Field {
	fields := make([]Field, 0, len(r))
	for f := range r {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// MaxPayloadBytes bounds a single payload. Larger payloads are malformed.
const MaxPayloadBytes = 64 * 1024

// checkStructure performs the store's own structural checks, independent of
// the field predicate.
func checkStructure(payload string) error {
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("payload is empty")
	}
	if len(payload) > MaxPayloadBytes {
		return fmt.Errorf("payload exceeds %d bytes", MaxPayloadBytes)
	}
	return nil
}
