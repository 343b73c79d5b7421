package dojo

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// Ingest records a discovered pattern on behalf of actor.
func (s *System) Ingest(ctx context.Context, actor privilege.Level, field pattern.Field, payload string) (pattern.ID, error) {
	if err := privilege.Require(s.Gate, actor, privilege.ActionPatternDiscovery); err != nil {
		return 0, err
	}
	return s.Patterns.Ingest(ctx, field, payload)
}

// Link records a relationship on behalf of actor.
func (s *System) Link(ctx context.Context, actor privilege.Level, source, target pattern.ID, kind graph.Kind, weight float64) (graph.RelationshipID, error) {
	if err := privilege.Require(s.Gate, actor, privilege.ActionPatternDiscovery); err != nil {
		return 0, err
	}
	return s.Graph.Link(ctx, source, target, kind, weight)
}

// IngestBatch records several patterns on behalf of actor. Each submission
// gets its own result; the privilege check covers the whole batch.
func (s *System) IngestBatch(ctx context.Context, actor privilege.Level, batch []pattern.Submission) ([]pattern.Result, error) {
	if err := privilege.Require(s.Gate, actor, privilege.ActionPatternDiscovery); err != nil {
		return nil, err
	}
	return s.Patterns.IngestBatch(ctx, batch), nil
}

// DomainPattern is one row of a domain query.
type DomainPattern struct {
	Pattern pattern.Pattern `json:"pattern"`

	// Related are the targets of the pattern's outgoing relationships that
	// match the kind filter, in query order.
	Related []pattern.ID `json:"related"`
}

// Query lists the validated patterns of domain by impact score (highest
// first, ties by id) with their related patterns. An empty kinds filter
// matches every kind.
func (s *System) Query(actor privilege.Level, domain string, kinds ...graph.Kind) ([]DomainPattern, error) {
	if err := privilege.Require(s.Gate, actor, privilege.ActionQueryGraph); err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if !k.Valid() {
			return nil, &graph.LinkError{Code: graph.ErrCodeUnknownKind, Kind: k}
		}
	}

	fields := graph.DomainFields(domain)
	if len(fields) == 0 {
		return nil, &pattern.ValidationError{
			Code:   pattern.ErrCodeUnknownField,
			Reason: fmt.Sprintf("domain %q names no field", domain),
		}
	}

	rows := []DomainPattern{}
	for _, f := range fields {
		if !slices.Contains(s.Patterns.Fields(), f) {
			return nil, &pattern.ValidationError{
				Code:   pattern.ErrCodeUnknownField,
				Field:  f,
				Reason: fmt.Sprintf("field %q is not registered", f),
			}
		}
		for _, p := range s.Patterns.ByField(f) {
			rows = append(rows, DomainPattern{Pattern: p})
		}
	}

	for i := range rows {
		rows[i].Pattern.ImpactScore = s.Graph.Score(rows[i].Pattern.ID)
	}
	slices.SortFunc(rows, func(a, b DomainPattern) int {
		if c := cmp.Compare(b.Pattern.ImpactScore, a.Pattern.ImpactScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Pattern.ID, b.Pattern.ID)
	})

	for i := range rows {
		rows[i].Related = []pattern.ID{}
		for p := range s.Graph.Query(rows[i].Pattern.ID, kinds...) {
			rows[i].Related = append(rows[i].Related, p.ID)
		}
	}
	return rows, nil
}

// Train asks the arena for a specialist for domain on behalf of actor.
func (s *System) Train(ctx context.Context, actor privilege.Level, domain string) (arena.SpecialistID, error) {
	return s.Arena.Train(ctx, domain, actor)
}

// Deploy promotes a benchmarked specialist on behalf of actor.
func (s *System) Deploy(ctx context.Context, actor privilege.Level, id arena.SpecialistID) error {
	return s.Arena.Deploy(ctx, id, actor)
}

// Benchmark re-runs the benchmark of a halted specialist on behalf of actor.
func (s *System) Benchmark(ctx context.Context, actor privilege.Level, id arena.SpecialistID) error {
	if err := privilege.Require(s.Gate, actor, privilege.ActionBenchmark); err != nil {
		return err
	}
	return s.Arena.Benchmark(ctx, id)
}

// Retire retires a specialist. Retiring is allowed at every level; a
// request during a step is applied when the step ends.
func (s *System) Retire(ctx context.Context, id arena.SpecialistID) error {
	return s.Arena.Retire(ctx, id)
}

// RequestEscalation asks for specialist id to run at Desktop privilege.
// Any actor may ask. The request is audited and persisted, so it can be
// approved from another process.
func (s *System) RequestEscalation(ctx context.Context, actor privilege.Level, id arena.SpecialistID, reason string) (privilege.Escalation, error) {
	sp, err := s.Specialist(ctx, id)
	if err != nil {
		return privilege.Escalation{}, err
	}
	if sp.State.IsTerminal() {
		return privilege.Escalation{}, &arena.Error{Code: arena.ErrCodeInvalidTransition, SpecialistID: id, Domain: sp.Domain, From: sp.State}
	}
	return s.Gate.RequestEscalation(ctx, string(id), sp.PrivilegeLevel, privilege.Desktop, reason, actor)
}

// ApproveEscalation approves a pending request on behalf of actor and
// raises the specialist to the requested level. Only Desktop may approve.
func (s *System) ApproveEscalation(ctx context.Context, actor privilege.Level, id string) (privilege.Escalation, error) {
	e, err := s.Gate.Escalation(ctx, id)
	if err != nil {
		return privilege.Escalation{}, err
	}
	subject := arena.SpecialistID(e.Subject)
	if sp, err := s.Specialist(ctx, subject); err != nil {
		return privilege.Escalation{}, err
	} else if sp.State.IsTerminal() {
		return privilege.Escalation{}, &arena.Error{Code: arena.ErrCodeInvalidTransition, SpecialistID: subject, Domain: sp.Domain, From: sp.State}
	}

	e, err = s.Gate.ApproveEscalation(ctx, id, actor)
	if err != nil {
		return privilege.Escalation{}, err
	}
	if _, err := s.Arena.SetPrivilege(ctx, subject, e.To); err != nil {
		return e, fmt.Errorf("apply escalation %s: %w", id, err)
	}
	return e, nil
}

// Task returns a task, preferring the stored record so that work done by
// another process sharing the store shows its current state. A terminal
// record this process could not persist wins over the stale stored one.
func (s *System) Task(ctx context.Context, id arena.TaskID) (arena.Task, error) {
	mem, memErr := s.Arena.Task(id)
	stored, err := s.Store.GetTask(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return mem, memErr
	case err != nil:
		return arena.Task{}, fmt.Errorf("read task %s: %w", id, err)
	case memErr == nil && mem.State.IsTerminal() && !stored.State.IsTerminal():
		return mem, nil
	}
	return stored, nil
}

// Specialist returns a specialist, reconciled with the store like Task.
func (s *System) Specialist(ctx context.Context, id arena.SpecialistID) (arena.Specialist, error) {
	mem, memErr := s.Arena.Status(id)
	stored, err := s.Store.GetSpecialist(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return mem, memErr
	case err != nil:
		return arena.Specialist{}, fmt.Errorf("read specialist %s: %w", id, err)
	case memErr == nil && mem.State.IsTerminal() && !stored.State.IsTerminal():
		return mem, nil
	}
	return stored, nil
}

// Stats aggregates every component's counters.
type Stats struct {
	Patterns  map[pattern.Field]pattern.FieldStats `json:"patterns"`
	Graph     graph.Stats                          `json:"graph"`
	Arena     arena.Stats                          `json:"arena"`
	Privilege []privilege.Usage                    `json:"privilege"`
}

// Stats returns a point-in-time summary.
func (s *System) Stats() Stats {
	return Stats{
		Patterns:  s.Patterns.Stats(),
		Graph:     s.Graph.Stats(),
		Arena:     s.Arena.Stats(),
		Privilege: s.Gate.Report(),
	}
}

// Neighbourhood describes one pattern's place in the graph.
type Neighbourhood struct {
	Pattern pattern.Pattern `json:"pattern"`

	// Edges are every relationship touching the pattern.
	Edges []graph.Edge `json:"edges"`

	// Conflicts are the patterns joined to it by conflicts-with.
	Conflicts []pattern.ID `json:"conflicts"`

	// Reachable lists the patterns reachable over outgoing edges of the
	// requested kinds, breadth-first, each once.
	Reachable []pattern.ID `json:"reachable"`
}

// Inspect returns the neighbourhood of id. depth <= 0 walks without limit.
//
// The pattern and its edges are read from the store, so they include
// writes made by other processes since this System was opened; conflicts
// and reachability come from the in-memory graph.
func (s *System) Inspect(ctx context.Context, actor privilege.Level, id pattern.ID, kinds []graph.Kind, depth int) (Neighbourhood, error) {
	if err := privilege.Require(s.Gate, actor, privilege.ActionQueryGraph); err != nil {
		return Neighbourhood{}, err
	}
	for _, k := range kinds {
		if !k.Valid() {
			return Neighbourhood{}, &graph.LinkError{Code: graph.ErrCodeUnknownKind, Kind: k}
		}
	}

	p, err := s.Store.GetPattern(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Neighbourhood{}, &pattern.NotFoundError{ID: id}
	}
	if err != nil {
		return Neighbourhood{}, fmt.Errorf("inspect pattern %s: %w", id, err)
	}
	edges, err := s.Store.PatternEdges(ctx, id)
	if err != nil {
		return Neighbourhood{}, fmt.Errorf("inspect pattern %s: %w", id, err)
	}
	p.ImpactScore = s.Graph.Score(id)

	n := Neighbourhood{
		Pattern:   p,
		Edges:     edges,
		Conflicts: s.Graph.Conflicts(id),
		Reachable: s.Graph.Walk(id, kinds, depth),
	}
	if n.Edges == nil {
		n.Edges = []graph.Edge{}
	}
	if n.Conflicts == nil {
		n.Conflicts = []pattern.ID{}
	}
	if n.Reachable == nil {
		n.Reachable = []pattern.ID{}
	}
	return n, nil
}

// Compatible reports whether a and b may be trained together.
func (s *System) Compatible(actor privilege.Level, a, b pattern.ID) (bool, error) {
	if err := privilege.Require(s.Gate, actor, privilege.ActionQueryGraph); err != nil {
		return false, err
	}
	for _, id := range []pattern.ID{a, b} {
		if _, ok := s.Patterns.Get(id); !ok {
			return false, &pattern.NotFoundError{ID: id}
		}
	}
	return s.Graph.Compatible(a, b), nil
}

// Export is a full dump of the pattern graph.
type Export struct {
	Patterns []pattern.Pattern `json:"patterns"`
	Edges    []graph.Edge      `json:"edges"`
}

// Export dumps every pattern, rejected ones included, and every edge.
// Exporting leaves the sandbox and requires desktop privilege.
func (s *System) Export(actor privilege.Level) (Export, error) {
	if err := privilege.Require(s.Gate, actor, privilege.ActionDataExport); err != nil {
		return Export{}, err
	}
	patterns := s.Patterns.All()
	for i := range patterns {
		if patterns[i].IsValidated() {
			patterns[i].ImpactScore = s.Graph.Score(patterns[i].ID)
		}
	}
	return Export{Patterns: patterns, Edges: s.Graph.All()}, nil
}
