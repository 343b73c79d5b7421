package store

import (
	"context"
	"fmt"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const patternColumns = `id, field, payload, digest, impact_score, status, reason, created_at`

const edgeColumns = `id, source, target, kind, weight, created_at`

const specialistColumns = `id, domain, privilege_level, state, compression_ratio, pattern_refs,
	footprint, benchmarked, retire_pending, created_at, updated_at`

const taskColumns = `id, description, domain, requested_privilege, priority, state,
	specialist_id, error, submitted_at, updated_at`

const escalationColumns = `id, subject, from_level, to_level, reason, state,
	requested_by, approved_by, requested_at, decided_at`

// GetPattern retrieves a single pattern by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetPattern(ctx context.Context, id pattern.ID) (pattern.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM patterns WHERE id = ?`, int64(id))
	return scanPattern(row)
}

// LoadPatterns returns every pattern ordered by id.
func (s *Store) LoadPatterns(ctx context.Context) ([]pattern.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patternColumns+` FROM patterns ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	patterns := []pattern.Pattern{}
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patterns: %w", err)
	}
	return patterns, nil
}

// LoadEdges returns every relationship ordered by id.
func (s *Store) LoadEdges(ctx context.Context) ([]graph.Edge, error) {
	return s.queryEdges(ctx, `SELECT `+edgeColumns+` FROM edges ORDER BY id ASC`)
}

// PatternEdges returns the relationships touching id at either endpoint,
// ordered by id.
func (s *Store) PatternEdges(ctx context.Context, id pattern.ID) ([]graph.Edge, error) {
	return s.queryEdges(ctx, `
		SELECT `+edgeColumns+` FROM edges
		WHERE source = ? OR target = ?
		ORDER BY id ASC
	`, int64(id), int64(id))
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...any) ([]graph.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	edges := []graph.Edge{}
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return edges, nil
}

// GetSpecialist retrieves a single specialist by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetSpecialist(ctx context.Context, id arena.SpecialistID) (arena.Specialist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+specialistColumns+` FROM specialists WHERE id = ?`, string(id))
	return scanSpecialist(row)
}

// LoadSpecialists returns every specialist ordered by creation time, then id.
func (s *Store) LoadSpecialists(ctx context.Context) ([]arena.Specialist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+specialistColumns+` FROM specialists
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query specialists: %w", err)
	}
	defer rows.Close()

	specialists := []arena.Specialist{}
	for rows.Next() {
		sp, err := scanSpecialist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan specialist: %w", err)
		}
		specialists = append(specialists, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate specialists: %w", err)
	}
	return specialists, nil
}

// GetTask retrieves a single task by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetTask(ctx context.Context, id arena.TaskID) (arena.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, string(id))
	return scanTask(row)
}

// LoadTasks returns every task ordered by submission time, then id.
func (s *Store) LoadTasks(ctx context.Context) ([]arena.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		ORDER BY submitted_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []arena.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// GetEscalation retrieves a single escalation request by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetEscalation(ctx context.Context, id string) (privilege.Escalation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id = ?`, id)
	return scanEscalation(row)
}

func scanPattern(row rowScanner) (pattern.Pattern, error) {
	var (
		p                     pattern.Pattern
		id                    int64
		field, status, create string
	)
	if err := row.Scan(&id, &field, &p.Payload, &p.Digest, &p.ImpactScore, &status, &p.Reason, &create); err != nil {
		return pattern.Pattern{}, err
	}
	createdAt, err := parseTime("created_at", create)
	if err != nil {
		return pattern.Pattern{}, err
	}
	p.ID = pattern.ID(id)
	p.Field = pattern.Field(field)
	p.Status = pattern.Status(status)
	p.CreatedAt = createdAt
	return p, nil
}

func scanEdge(row rowScanner) (graph.Edge, error) {
	var (
		e                  graph.Edge
		id, source, target int64
		kind, create       string
	)
	if err := row.Scan(&id, &source, &target, &kind, &e.Weight, &create); err != nil {
		return graph.Edge{}, err
	}
	createdAt, err := parseTime("created_at", create)
	if err != nil {
		return graph.Edge{}, err
	}
	e.ID = graph.RelationshipID(id)
	e.Source = pattern.ID(source)
	e.Target = pattern.ID(target)
	e.Kind = graph.Kind(kind)
	e.CreatedAt = createdAt
	return e, nil
}

func scanSpecialist(row rowScanner) (arena.Specialist, error) {
	var (
		sp                                     arena.Specialist
		id, level, state, refs, create, update string
		benchmarked, retirePending             int
	)
	if err := row.Scan(
		&id, &sp.Domain, &level, &state, &sp.CompressionRatio, &refs,
		&sp.Footprint, &benchmarked, &retirePending, &create, &update,
	); err != nil {
		return arena.Specialist{}, err
	}

	patternRefs, err := unmarshalRefs(refs)
	if err != nil {
		return arena.Specialist{}, err
	}
	createdAt, err := parseTime("created_at", create)
	if err != nil {
		return arena.Specialist{}, err
	}
	updatedAt, err := parseTime("updated_at", update)
	if err != nil {
		return arena.Specialist{}, err
	}

	sp.ID = arena.SpecialistID(id)
	sp.PrivilegeLevel = privilege.Level(level)
	sp.State = arena.SpecialistState(state)
	sp.PatternRefs = patternRefs
	sp.Benchmarked = benchmarked != 0
	sp.RetirePending = retirePending != 0
	sp.CreatedAt = createdAt
	sp.UpdatedAt = updatedAt
	return sp, nil
}

func scanTask(row rowScanner) (arena.Task, error) {
	var (
		t                                                   arena.Task
		id, level, priority, state, specialist, sub, update string
	)
	if err := row.Scan(
		&id, &t.Description, &t.Domain, &level, &priority, &state,
		&specialist, &t.Error, &sub, &update,
	); err != nil {
		return arena.Task{}, err
	}

	submittedAt, err := parseTime("submitted_at", sub)
	if err != nil {
		return arena.Task{}, err
	}
	updatedAt, err := parseTime("updated_at", update)
	if err != nil {
		return arena.Task{}, err
	}

	t.ID = arena.TaskID(id)
	t.RequestedPrivilege = privilege.Level(level)
	t.Priority = arena.Priority(priority)
	t.State = arena.TaskState(state)
	t.SpecialistID = arena.SpecialistID(specialist)
	t.SubmittedAt = submittedAt
	t.UpdatedAt = updatedAt
	return t, nil
}

func scanEscalation(row rowScanner) (privilege.Escalation, error) {
	var (
		e                                        privilege.Escalation
		from, to, state, requestedBy, approvedBy string
		requested, decided                       string
	)
	if err := row.Scan(
		&e.ID, &e.Subject, &from, &to, &e.Reason, &state,
		&requestedBy, &approvedBy, &requested, &decided,
	); err != nil {
		return privilege.Escalation{}, err
	}

	requestedAt, err := parseTime("requested_at", requested)
	if err != nil {
		return privilege.Escalation{}, err
	}
	if decided != "" {
		if e.DecidedAt, err = parseTime("decided_at", decided); err != nil {
			return privilege.Escalation{}, err
		}
	}

	e.From = privilege.Level(from)
	e.To = privilege.Level(to)
	e.State = privilege.EscalationState(state)
	e.RequestedBy = privilege.Level(requestedBy)
	e.ApprovedBy = privilege.Level(approvedBy)
	e.RequestedAt = requestedAt
	return e, nil
}
