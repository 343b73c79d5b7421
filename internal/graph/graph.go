package graph

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/dojo/internal/lock"
	"github.com/roach88/dojo/internal/metrics"
	"github.com/roach88/dojo/internal/pattern"
)

// PatternSource is the part of the pattern store the graph depends on.
// The graph holds only pattern ids and reads everything else through it.
type PatternSource interface {
	Get(id pattern.ID) (pattern.Pattern, bool)
	ByField(field pattern.Field) []pattern.Pattern
	SetImpact(ctx context.Context, id pattern.ID, score float64) error
}

// Repository persists edges.
type Repository interface {
	SaveEdge(ctx context.Context, e Edge) error
}

// writerKey is the single key of the writer lock.
const writerKey = "writer"

// Graph owns the relationships between patterns.
//
// Thread-safety model:
//   - Link and Restore: single writer, serialized by a bounded-wait lock
//   - Query, Edges, Conflicts, Compatible, Applicable, Walk: concurrent readers
//
// An edge becomes visible to readers together with its endpoints' new
// degrees; readers never observe a partially inserted edge.
type Graph struct {
	patterns PatternSource
	repo     Repository
	now      func() time.Time
	writer   *lock.Keyed

	mu      sync.RWMutex
	lastID  RelationshipID
	edges   map[RelationshipID]*Edge
	out     map[pattern.ID][]*Edge
	in      map[pattern.ID][]*Edge
	degrees map[pattern.ID]*degree
}

// Option configures a Graph.
type Option func(*Graph)

// WithRepository persists every edge before it becomes visible.
func WithRepository(r Repository) Option {
	return func(g *Graph) {
		g.repo = r
	}
}

// WithLockWait bounds how long a writer waits for the graph.
func WithLockWait(d time.Duration) Option {
	return func(g *Graph) {
		g.writer = lock.NewKeyed("graph", d)
	}
}

// WithNow replaces the wall clock used for CreatedAt.
func WithNow(now func() time.Time) Option {
	return func(g *Graph) {
		g.now = now
	}
}

// New creates an empty graph over patterns.
func New(patterns PatternSource, opts ...Option) *Graph {
	g := &Graph{
		patterns: patterns,
		now:      time.Now,
		writer:   lock.NewKeyed("graph", lock.DefaultWait),
		edges:    make(map[RelationshipID]*Edge),
		out:      make(map[pattern.ID][]*Edge),
		in:       make(map[pattern.ID][]*Edge),
		degrees:  make(map[pattern.ID]*degree),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Link records a relationship from source to target and rescores both
// endpoints.
//
// Both endpoints must exist and be Validated; otherwise a *LinkError is
// returned and nothing is recorded. A *lock.BusyError is returned if the
// writer lock is not acquired in time.
func (g *Graph) Link(ctx context.Context, source, target pattern.ID, kind Kind, weight float64) (RelationshipID, error) {
	if !kind.Valid() {
		metrics.RecordLinkRejection(string(ErrCodeUnknownKind))
		return 0, &LinkError{Code: ErrCodeUnknownKind, Kind: kind}
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		metrics.RecordLinkRejection(string(ErrCodeInvalidWeight))
		return 0, &LinkError{Code: ErrCodeInvalidWeight, Weight: weight}
	}

	release, err := g.writer.Acquire(ctx, writerKey)
	if err != nil {
		return 0, err
	}
	defer release()

	for _, id := range []pattern.ID{source, target} {
		if err := g.checkEndpoint(id); err != nil {
			metrics.RecordLinkRejection(string(err.Code))
			return 0, err
		}
	}

	// Only the writer touches lastID, and it holds the writer lock.
	e := Edge{
		ID:        g.lastID + 1,
		Source:    source,
		Target:    target,
		Kind:      kind,
		Weight:    weight,
		CreatedAt: g.now().UTC(),
	}

	if g.repo != nil {
		if err := g.repo.SaveEdge(ctx, e); err != nil {
			return 0, fmt.Errorf("link %s->%s: %w", source, target, err)
		}
	}

	g.mu.Lock()
	g.insertLocked(&e)
	scores := g.scoresLocked(source, target)
	g.mu.Unlock()

	g.pushScores(ctx, scores)

	slog.Debug("relationship linked",
		"id", e.ID,
		"source", source,
		"target", target,
		"kind", kind,
		"weight", weight)
	metrics.RecordLink(string(kind))

	return e.ID, nil
}

func (g *Graph) checkEndpoint(id pattern.ID) *LinkError {
	p, ok := g.patterns.Get(id)
	if !ok {
		return &LinkError{Code: ErrCodeUnknownPattern, Pattern: id}
	}
	if !p.IsValidated() {
		return &LinkError{Code: ErrCodeNotValidated, Pattern: id, Status: p.Status}
	}
	return nil
}

// insertLocked indexes e. Caller holds g.mu for writing.
func (g *Graph) insertLocked(e *Edge) {
	g.edges[e.ID] = e
	g.out[e.Source] = append(g.out[e.Source], e)
	g.in[e.Target] = append(g.in[e.Target], e)
	g.degreeLocked(e.Source).add(e, false)
	g.degreeLocked(e.Target).add(e, true)
	if e.ID > g.lastID {
		g.lastID = e.ID
	}
}

func (g *Graph) degreeLocked(id pattern.ID) *degree {
	d, ok := g.degrees[id]
	if !ok {
		d = &degree{}
		g.degrees[id] = d
	}
	return d
}

// scoresLocked returns the current scores of ids. Caller holds g.mu.
func (g *Graph) scoresLocked(ids ...pattern.ID) map[pattern.ID]float64 {
	scores := make(map[pattern.ID]float64, len(ids))
	for _, id := range ids {
		scores[id] = g.scoreLocked(id)
	}
	return scores
}

func (g *Graph) scoreLocked(id pattern.ID) float64 {
	d, ok := g.degrees[id]
	if !ok {
		return 0
	}
	return d.impact()
}

// pushScores hands recomputed scores to the pattern store. Caller holds the
// writer lock so pushes for successive links arrive in order.
func (g *Graph) pushScores(ctx context.Context, scores map[pattern.ID]float64) {
	ids := make([]pattern.ID, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if err := g.patterns.SetImpact(ctx, id, scores[id]); err != nil {
			slog.Warn("failed to push impact score", "pattern", id, "error", err)
		}
	}
}

// Score returns the graph's impact score for id.
func (g *Graph) Score(id pattern.ID) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.scoreLocked(id)
}

// Query returns the targets of id's outgoing edges whose kind is in kinds
// (all kinds when empty), ordered by weight descending then target id
// ascending. A target reached by several edges is yielded once, at the
// position of its heaviest edge.
//
// The sequence is lazy: each iteration snapshots the matching edges and
// looks patterns up as they are yielded. It can be ranged over any number
// of times; each pass reflects the graph at the time it starts.
func (g *Graph) Query(id pattern.ID, kinds ...Kind) iter.Seq[pattern.Pattern] {
	return func(yield func(pattern.Pattern) bool) {
		seen := make(map[pattern.ID]bool)
		for _, e := range g.outgoing(id, kinds) {
			if seen[e.Target] {
				continue
			}
			seen[e.Target] = true
			p, ok := g.patterns.Get(e.Target)
			if !ok {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// outgoing snapshots id's outgoing edges in query order.
func (g *Graph) outgoing(id pattern.ID, kinds []Kind) []Edge {
	g.mu.RLock()
	edges := make([]Edge, 0, len(g.out[id]))
	for _, e := range g.out[id] {
		if len(kinds) == 0 || slices.Contains(kinds, e.Kind) {
			edges = append(edges, *e)
		}
	}
	g.mu.RUnlock()

	slices.SortStableFunc(edges, compareQueryOrder)
	return edges
}

func compareQueryOrder(a, b Edge) int {
	if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Target, b.Target); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Edges returns every edge incident to id, ordered by edge id.
func (g *Graph) Edges(id pattern.ID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []Edge
	for _, e := range g.out[id] {
		edges = append(edges, *e)
	}
	for _, e := range g.in[id] {
		if e.Source == e.Target {
			continue
		}
		edges = append(edges, *e)
	}
	slices.SortFunc(edges, func(a, b Edge) int { return cmp.Compare(a.ID, b.ID) })
	return edges
}

// All returns every edge ordered by id.
func (g *Graph) All() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, *e)
	}
	slices.SortFunc(edges, func(a, b Edge) int { return cmp.Compare(a.ID, b.ID) })
	return edges
}

// Conflicts returns the patterns linked to id by a conflicts-with edge in
// either direction, ordered by id. Conflicts are reported, never resolved.
func (g *Graph) Conflicts(id pattern.ID) []pattern.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[pattern.ID]struct{})
	for _, e := range g.out[id] {
		if e.Kind == KindConflictsWith {
			seen[e.Target] = struct{}{}
		}
	}
	for _, e := range g.in[id] {
		if e.Kind == KindConflictsWith {
			seen[e.Source] = struct{}{}
		}
	}

	ids := make([]pattern.ID, 0, len(seen))
	for other := range seen {
		ids = append(ids, other)
	}
	slices.Sort(ids)
	return ids
}

// Compatible reports whether no conflicts-with edge joins a and b.
func (g *Graph) Compatible(a, b pattern.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.conflictLocked(a, b)
}

func (g *Graph) conflictLocked(a, b pattern.ID) bool {
	for _, e := range g.out[a] {
		if e.Kind == KindConflictsWith && e.Target == b {
			return true
		}
	}
	for _, e := range g.out[b] {
		if e.Kind == KindConflictsWith && e.Target == a {
			return true
		}
	}
	return false
}

// DomainFields splits a domain key into its fields. A composite domain joins
// fields with "+", for example "algebra+geometry". Empty components and
// repeats are dropped.
func DomainFields(domain string) []pattern.Field {
	var fields []pattern.Field
	for part := range strings.SplitSeq(domain, "+") {
		f := pattern.Field(strings.TrimSpace(part))
		if f == "" || slices.Contains(fields, f) {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// Applicable selects the patterns a specialist for domain should be trained
// on.
//
// Candidates are the validated patterns of the domain's fields. They are
// considered greedily by impact score descending then id ascending, and a
// candidate is skipped if it conflicts with one already chosen. The result
// is deterministic for a given graph state.
func (g *Graph) Applicable(domain string) []pattern.Pattern {
	var candidates []pattern.Pattern
	for _, f := range DomainFields(domain) {
		candidates = append(candidates, g.patterns.ByField(f)...)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	scores := make(map[pattern.ID]float64, len(candidates))
	for _, p := range candidates {
		scores[p.ID] = g.scoreLocked(p.ID)
	}

	slices.SortFunc(candidates, func(a, b pattern.Pattern) int {
		if c := cmp.Compare(scores[b.ID], scores[a.ID]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	chosen := make([]pattern.Pattern, 0, len(candidates))
	for _, p := range candidates {
		if !p.IsValidated() {
			continue
		}
		conflicting := false
		for _, c := range chosen {
			if g.conflictLocked(p.ID, c.ID) {
				conflicting = true
				break
			}
		}
		if conflicting {
			continue
		}
		p.ImpactScore = scores[p.ID]
		chosen = append(chosen, p)
	}
	return chosen
}

// Walk follows outgoing edges of the given kinds (all kinds when empty)
// breadth-first from id and returns each reachable pattern once, in visit
// order. The start is not included. maxDepth <= 0 means unbounded.
//
// Cycles are cut by the visited set, so the result is the acyclic
// traversal of the graph from id.
func (g *Graph) Walk(id pattern.ID, kinds []Kind, maxDepth int) []pattern.ID {
	type queueItem struct {
		id    pattern.ID
		depth int
	}

	visited := map[pattern.ID]bool{id: true}
	queue := []queueItem{{id: id, depth: 0}}
	var reached []pattern.ID

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if maxDepth > 0 && current.depth >= maxDepth {
			continue
		}

		for _, e := range g.outgoing(current.id, kinds) {
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			reached = append(reached, e.Target)
			queue = append(queue, queueItem{id: e.Target, depth: current.depth + 1})
		}
	}
	return reached
}

// Restore loads previously persisted edges and recomputes every affected
// score. Edges already present are skipped, as are edges whose endpoints are
// no longer validated patterns.
func (g *Graph) Restore(ctx context.Context, edges []Edge) error {
	release, err := g.writer.Acquire(ctx, writerKey)
	if err != nil {
		return err
	}
	defer release()

	sorted := slices.Clone(edges)
	slices.SortFunc(sorted, func(a, b Edge) int { return cmp.Compare(a.ID, b.ID) })

	touched := make(map[pattern.ID]struct{})

	g.mu.Lock()
	for _, e := range sorted {
		if _, exists := g.edges[e.ID]; exists {
			continue
		}
		if err := g.checkEndpoint(e.Source); err != nil {
			slog.Warn("skipping edge on restore", "id", e.ID, "error", err)
			continue
		}
		if err := g.checkEndpoint(e.Target); err != nil {
			slog.Warn("skipping edge on restore", "id", e.ID, "error", err)
			continue
		}
		cp := e
		g.insertLocked(&cp)
		touched[e.Source] = struct{}{}
		touched[e.Target] = struct{}{}
	}
	ids := make([]pattern.ID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	scores := g.scoresLocked(ids...)
	g.mu.Unlock()

	g.pushScores(ctx, scores)
	return nil
}

// Stats returns edge counts.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := Stats{Edges: len(g.edges), ByKind: make(map[Kind]int, len(Kinds))}
	for _, k := range Kinds {
		st.ByKind[k] = 0
	}
	for _, e := range g.edges {
		st.ByKind[e.Kind]++
	}
	return st
}
