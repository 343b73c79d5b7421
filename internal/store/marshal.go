package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/dojo/internal/pattern"
)

// marshalRefs converts pattern refs to JSON TEXT for storage.
// A nil slice is stored as "[]" so the column never holds null.
func marshalRefs(refs []pattern.ID) (string, error) {
	if len(refs) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal pattern refs: %w", err)
	}
	return string(data), nil
}

// unmarshalRefs parses JSON TEXT into pattern refs.
func unmarshalRefs(data string) ([]pattern.ID, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var refs []pattern.ID
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal pattern refs: %w", err)
	}
	return refs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", column, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
