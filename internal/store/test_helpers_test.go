package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// createTestStore creates a new temporary store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func createTestPattern(id pattern.ID, field pattern.Field, payload string) pattern.Pattern {
	return pattern.Pattern{
		ID:        id,
		Field:     field,
		Payload:   payload,
		Digest:    pattern.Digest(field, payload),
		Status:    pattern.StatusValidated,
		CreatedAt: at(int(id)),
	}
}

func createTestSpecialist(id, domain string, state arena.SpecialistState, created int) arena.Specialist {
	return arena.Specialist{
		ID:             arena.SpecialistID(id),
		Domain:         domain,
		PrivilegeLevel: privilege.Desktop,
		State:          state,
		CreatedAt:      at(created),
		UpdatedAt:      at(created),
	}
}

func createTestTask(id, domain string, state arena.TaskState, submitted int) arena.Task {
	return arena.Task{
		ID:                 arena.TaskID(id),
		Description:        "task " + id,
		Domain:             domain,
		RequestedPrivilege: privilege.Desktop,
		Priority:           arena.PriorityMedium,
		State:              state,
		SubmittedAt:        at(submitted),
		UpdatedAt:          at(submitted),
	}
}
