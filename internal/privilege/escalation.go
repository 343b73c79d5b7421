package privilege

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/dojo/internal/metrics"
)

// EscalationState is where an escalation request stands.
type EscalationState string

const (
	EscalationPending  EscalationState = "pending"
	EscalationApproved EscalationState = "approved"
)

// Escalation is a request to raise a subject's privilege level. The
// subject is a specialist id.
type Escalation struct {
	ID          string          `json:"id"`
	Subject     string          `json:"subject"`
	From        Level           `json:"from"`
	To          Level           `json:"to"`
	Reason      string          `json:"reason,omitempty"`
	State       EscalationState `json:"state"`
	RequestedBy Level           `json:"requested_by"`
	ApprovedBy  Level           `json:"approved_by,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	DecidedAt   time.Time       `json:"decided_at,omitzero"`
}

// EscalationRepository persists escalation requests so a request made by
// one process can be approved by another. GetEscalation returns
// sql.ErrNoRows for an unknown id.
type EscalationRepository interface {
	SaveEscalation(ctx context.Context, e Escalation) error
	GetEscalation(ctx context.Context, id string) (Escalation, error)
}

var (
	// ErrInvalidEscalation is returned for a request that does not raise
	// the subject's level.
	ErrInvalidEscalation = errors.New("invalid escalation")
	// ErrEscalationNotFound is returned for an unknown request id.
	ErrEscalationNotFound = errors.New("escalation not found")
	// ErrEscalationDecided is returned when approving a request twice.
	ErrEscalationDecided = errors.New("escalation already decided")
)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithEscalations persists escalation requests in repo.
func WithEscalations(repo EscalationRepository) RecorderOption {
	return func(r *Recorder) {
		r.escalationRepo = repo
	}
}

// WithNow replaces the clock used to stamp escalations.
func WithNow(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithIDs replaces the UUIDv7 escalation id generator.
func WithIDs(next func() string) RecorderOption {
	return func(r *Recorder) {
		r.nextID = next
	}
}

func rank(l Level) int {
	switch l {
	case Sandboxed:
		return 1
	case Desktop:
		return 2
	}
	return 0
}

// RequestEscalation records a pending request to raise subject from one
// level to a higher one. Anyone may ask; only Desktop may approve.
func (r *Recorder) RequestEscalation(ctx context.Context, subject string, from, to Level, reason string, requestedBy Level) (Escalation, error) {
	if subject == "" {
		return Escalation{}, fmt.Errorf("%w: subject is required", ErrInvalidEscalation)
	}
	if rank(from) == 0 || rank(to) == 0 || rank(requestedBy) == 0 {
		return Escalation{}, fmt.Errorf("%w: unknown privilege level", ErrInvalidEscalation)
	}
	if rank(to) <= rank(from) {
		return Escalation{}, fmt.Errorf("%w: %s is already at %s", ErrInvalidEscalation, subject, from)
	}

	e := Escalation{
		ID:          r.nextID(),
		Subject:     subject,
		From:        from,
		To:          to,
		Reason:      reason,
		State:       EscalationPending,
		RequestedBy: requestedBy,
		RequestedAt: r.now().UTC(),
	}
	if err := r.saveEscalation(ctx, e); err != nil {
		return Escalation{}, err
	}

	r.mu.Lock()
	r.escalations[e.ID] = e
	r.mu.Unlock()

	metrics.RecordEscalation(string(to), "requested")
	slog.Info("privilege escalation requested",
		"escalation", e.ID, "subject", subject, "from", from, "to", to, "reason", reason, "requested_by", requestedBy)
	return e, nil
}

// ApproveEscalation approves a pending request. The approver must be
// Desktop; a refusal is returned as *DeniedError and leaves the request
// pending. The caller applies the new level to the subject.
func (r *Recorder) ApproveEscalation(ctx context.Context, id string, approver Level) (Escalation, error) {
	e, err := r.Escalation(ctx, id)
	if err != nil {
		return Escalation{}, err
	}

	if approver != Desktop {
		metrics.RecordEscalation(string(e.To), "denied")
		slog.Warn("privilege escalation approval refused", "escalation", id, "approver", approver)
		return Escalation{}, &DeniedError{
			Level:  approver,
			Reason: fmt.Sprintf("approving an escalation requires %s privilege", Desktop),
		}
	}
	if e.State != EscalationPending {
		return Escalation{}, fmt.Errorf("%w: %s is %s", ErrEscalationDecided, id, e.State)
	}

	e.State = EscalationApproved
	e.ApprovedBy = approver
	e.DecidedAt = r.now().UTC()
	if err := r.saveEscalation(ctx, e); err != nil {
		return Escalation{}, err
	}

	r.mu.Lock()
	r.escalations[e.ID] = e
	r.mu.Unlock()

	metrics.RecordEscalation(string(e.To), "approved")
	slog.Info("privilege escalation approved", "escalation", id, "subject", e.Subject, "to", e.To, "approved_by", approver)
	return e, nil
}

// Escalation returns a request by id. The repository, when configured, is
// authoritative so requests made by other processes are visible.
func (r *Recorder) Escalation(ctx context.Context, id string) (Escalation, error) {
	if r.escalationRepo != nil {
		e, err := r.escalationRepo.GetEscalation(ctx, id)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Escalation{}, fmt.Errorf("read escalation %s: %w", id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escalations[id]
	if !ok {
		return Escalation{}, fmt.Errorf("%w: %s", ErrEscalationNotFound, id)
	}
	return e, nil
}

func (r *Recorder) saveEscalation(ctx context.Context, e Escalation) error {
	if r.escalationRepo == nil {
		return nil
	}
	if err := r.escalationRepo.SaveEscalation(ctx, e); err != nil {
		return fmt.Errorf("save escalation %s: %w", e.ID, err)
	}
	return nil
}

func newEscalationID() string {
	return uuid.Must(uuid.NewV7()).String()
}
