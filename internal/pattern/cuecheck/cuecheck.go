// Package cuecheck builds pattern validation predicates from CUE.
//
// Field predicates are configuration, not runtime data. They are declared in
// a CUE file under a top-level "fields" struct, one entry per field. Each
// entry constrains a document of the form {payload: "<payload>"}:
//
//	fields: {
//		arithmetic: payload: =~"="
//		geometry: payload: strings.MinRunes(3)
//		"information-theory": {}
//	}
//
// An empty entry registers the field with no constraint beyond the store's
// structural checks.
package cuecheck

import (
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dojo/internal/pattern"
)

// CheckError describes a CUE compile or validation failure.
type CheckError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CheckError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadFile reads and compiles the CUE file at path.
func LoadFile(path string) (pattern.Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read validators: %w", err)
	}
	return Compile(path, src)
}

// Compile builds a Registry from CUE source. filename is used in positions.
func Compile(filename string, src []byte) (pattern.Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CheckError{Field: "fields", Message: "fields is required", Pos: v.Pos()}
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError("fields", err)
	}

	// cue.Context is not safe for concurrent use; all predicates built from
	// one source share it and therefore share this mutex.
	mu := &sync.Mutex{}

	reg := pattern.Registry{}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		schema := iter.Value()
		if err := schema.Err(); err != nil {
			return nil, formatCUEError(name, err)
		}
		reg[pattern.Field(name)] = &fieldValidator{
			field:  name,
			schema: schema,
			mu:     mu,
		}
	}

	if len(reg) == 0 {
		return nil, &CheckError{Field: "fields", Message: "at least one field is required", Pos: fieldsVal.Pos()}
	}

	return reg, nil
}

// fieldValidator unifies a payload document with a field schema.
type fieldValidator struct {
	field  string
	schema cue.Value
	mu     *sync.Mutex
}

// Validate implements pattern.Validator.
func (v *fieldValidator) Validate(payload string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.schema.Context().Encode(map[string]string{"payload": payload})
	unified := v.schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(v.field, err)
	}
	return nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	ce := &CheckError{Field: field, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
