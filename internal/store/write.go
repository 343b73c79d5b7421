package store

import (
	"context"
	"fmt"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// SavePattern upserts a pattern. Only the mutable columns (impact score,
// status, reason) change on conflict.
func (s *Store) SavePattern(ctx context.Context, p pattern.Pattern) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns
		(id, field, payload, digest, impact_score, status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			impact_score = excluded.impact_score,
			status = excluded.status,
			reason = excluded.reason
	`,
		int64(p.ID),
		string(p.Field),
		p.Payload,
		p.Digest,
		p.ImpactScore,
		string(p.Status),
		p.Reason,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save pattern %s: %w", p.ID, err)
	}
	return nil
}

// SaveEdge inserts a relationship. Edges are immutable, so a duplicate id
// is silently ignored.
//
// Note: both endpoints must already be stored (foreign key constraint).
func (s *Store) SaveEdge(ctx context.Context, e graph.Edge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges
		(id, source, target, kind, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		int64(e.ID),
		int64(e.Source),
		int64(e.Target),
		string(e.Kind),
		e.Weight,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save edge %s: %w", e.ID, err)
	}
	return nil
}

// SaveSpecialist upserts a specialist's full state.
func (s *Store) SaveSpecialist(ctx context.Context, sp arena.Specialist) error {
	refs, err := marshalRefs(sp.PatternRefs)
	if err != nil {
		return fmt.Errorf("save specialist %s: %w", sp.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO specialists
		(id, domain, privilege_level, state, compression_ratio, pattern_refs,
		 footprint, benchmarked, retire_pending, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			privilege_level = excluded.privilege_level,
			state = excluded.state,
			compression_ratio = excluded.compression_ratio,
			pattern_refs = excluded.pattern_refs,
			footprint = excluded.footprint,
			benchmarked = excluded.benchmarked,
			retire_pending = excluded.retire_pending,
			updated_at = excluded.updated_at
	`,
		string(sp.ID),
		sp.Domain,
		string(sp.PrivilegeLevel),
		string(sp.State),
		sp.CompressionRatio,
		refs,
		sp.Footprint,
		boolInt(sp.Benchmarked),
		boolInt(sp.RetirePending),
		formatTime(sp.CreatedAt),
		formatTime(sp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save specialist %s: %w", sp.ID, err)
	}
	return nil
}

// SaveTask upserts a task's full state.
func (s *Store) SaveTask(ctx context.Context, t arena.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
		(id, description, domain, requested_privilege, priority, state,
		 specialist_id, error, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			specialist_id = excluded.specialist_id,
			error = excluded.error,
			updated_at = excluded.updated_at
	`,
		string(t.ID),
		t.Description,
		t.Domain,
		string(t.RequestedPrivilege),
		string(t.Priority),
		string(t.State),
		string(t.SpecialistID),
		t.Error,
		formatTime(t.SubmittedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// SaveEscalation upserts an escalation request.
func (s *Store) SaveEscalation(ctx context.Context, e privilege.Escalation) error {
	decidedAt := ""
	if !e.DecidedAt.IsZero() {
		decidedAt = formatTime(e.DecidedAt)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalations
		(id, subject, from_level, to_level, reason, state,
		 requested_by, approved_by, requested_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			approved_by = excluded.approved_by,
			decided_at = excluded.decided_at
	`,
		e.ID,
		e.Subject,
		string(e.From),
		string(e.To),
		e.Reason,
		string(e.State),
		string(e.RequestedBy),
		string(e.ApprovedBy),
		formatTime(e.RequestedAt),
		decidedAt,
	)
	if err != nil {
		return fmt.Errorf("save escalation %s: %w", e.ID, err)
	}
	return nil
}
