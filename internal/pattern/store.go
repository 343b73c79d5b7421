package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/dojo/internal/lock"
	"github.com/roach88/dojo/internal/metrics"
)

// Repository persists patterns. Implemented by the storage collaborator
// (internal/store). Writes must be atomic per pattern.
type Repository interface {
	SavePattern(ctx context.Context, p Pattern) error
}

// Store owns all patterns.
//
// Thread-safety model:
//   - Ingest: serialized per field, parallel across fields
//   - Get/ByField/ImpactScore: safe from any goroutine
//   - SetImpact: called by the relationship graph under its writer lock
type Store struct {
	registry Registry
	clock    *Clock
	repo     Repository
	now      func() time.Time

	fieldLocks *lock.Keyed

	mu       sync.RWMutex
	patterns map[ID]*Pattern
	byDigest map[string]ID
	byField  map[Field][]ID
}

// Option configures a Store.
type Option func(*Store)

// WithRepository persists every accepted or rejected pattern before it
// becomes visible.
func WithRepository(r Repository) Option {
	return func(s *Store) {
		s.repo = r
	}
}

// WithLockWait bounds how long Ingest waits for its field.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		s.fieldLocks = lock.NewKeyed("field", d)
	}
}

// WithClock replaces the id clock.
func WithClock(c *Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithNow replaces the wall clock used for CreatedAt.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store for the fields in registry.
// The registry is copied; later changes to the map do not affect the store.
func NewStore(registry Registry, opts ...Option) *Store {
	reg := make(Registry, len(registry))
	for f, v := range registry {
		if v == nil {
			v = AcceptAll
		}
		reg[f] = v
	}

	s := &Store{
		registry:   reg,
		clock:      NewClock(),
		now:        time.Now,
		fieldLocks: lock.NewKeyed("field", lock.DefaultWait),
		patterns:   make(map[ID]*Pattern),
		byDigest:   make(map[string]ID),
		byField:    make(map[Field][]ID),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Fields returns the fields the store accepts.
func (s *Store) Fields() []Field {
	return s.registry.Fields()
}

// Ingest validates payload for field and records it.
//
// On success the new pattern is Validated and its id is returned. Failures
// are reported as *ValidationError:
//   - UNKNOWN_FIELD: field is not registered (nothing recorded)
//   - MALFORMED_PAYLOAD from the structural check (nothing recorded)
//   - DUPLICATE: an equal payload already exists in the field (nothing recorded)
//   - MALFORMED_PAYLOAD from the field predicate: the pattern is recorded as
//     Rejected and RejectedID is set
//
// A *lock.BusyError is returned if the field lock is not acquired in time.
func (s *Store) Ingest(ctx context.Context, field Field, payload string) (ID, error) {
	validator, ok := s.registry[field]
	if !ok {
		metrics.RecordIngest(string(field), "unknown_field")
		return 0, &ValidationError{
			Code:   ErrCodeUnknownField,
			Field:  field,
			Reason: fmt.Sprintf("field %q is not registered", field),
		}
	}

	if err := checkStructure(payload); err != nil {
		metrics.RecordIngest(string(field), "malformed")
		return 0, &ValidationError{Code: ErrCodeMalformedPayload, Field: field, Reason: err.Error()}
	}

	release, err := s.fieldLocks.Acquire(ctx, string(field))
	if err != nil {
		metrics.RecordIngest(string(field), "busy")
		return 0, err
	}
	defer release()

	digest := Digest(field, payload)

	s.mu.RLock()
	existing, dup := s.byDigest[digest]
	s.mu.RUnlock()
	if dup {
		metrics.RecordIngest(string(field), "duplicate")
		return 0, &ValidationError{
			Code:       ErrCodeDuplicate,
			Field:      field,
			Reason:     "payload already ingested",
			ExistingID: existing,
		}
	}

	p := Pattern{
		ID:        s.clock.Next(),
		Field:     field,
		Payload:   payload,
		Digest:    digest,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}

	verr := validator.Validate(payload)
	if verr != nil {
		p.Status = StatusRejected
		p.Reason = verr.Error()
	} else {
		p.Status = StatusValidated
	}

	if s.repo != nil {
		if err := s.repo.SavePattern(ctx, p); err != nil {
			metrics.RecordIngest(string(field), "error")
			return 0, fmt.Errorf("ingest %s: %w", field, err)
		}
	}

	s.mu.Lock()
	s.insertLocked(p)
	s.mu.Unlock()

	if verr != nil {
		slog.Debug("pattern rejected", "id", p.ID, "field", field, "reason", p.Reason)
		metrics.RecordIngest(string(field), "rejected")
		return 0, &ValidationError{
			Code:       ErrCodeMalformedPayload,
			Field:      field,
			Reason:     p.Reason,
			RejectedID: p.ID,
		}
	}

	slog.Debug("pattern validated", "id", p.ID, "field", field)
	metrics.RecordIngest(string(field), "validated")
	return p.ID, nil
}

// IngestBatch ingests each submission in order. Every element gets its own
// result; one failure does not affect the others.
func (s *Store) IngestBatch(ctx context.Context, batch []Submission) []Result {
	results := make([]Result, len(batch))
	for i, sub := range batch {
		id, err := s.Ingest(ctx, sub.Field, sub.Payload)
		results[i] = Result{ID: id, Err: err}
	}
	return results
}

// insertLocked indexes p. Caller holds s.mu for writing.
// Only validated patterns enter the duplicate index; rejected ones are kept
// for lookup by id.
func (s *Store) insertLocked(p Pattern) {
	cp := p
	s.patterns[p.ID] = &cp
	if p.Status == StatusValidated {
		s.byDigest[p.Digest] = p.ID
		s.byField[p.Field] = append(s.byField[p.Field], p.ID)
	}
}

// Get returns a copy of the pattern with the given id.
func (s *Store) Get(id ID) (Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[id]
	if !ok {
		return Pattern{}, false
	}
	return *p, true
}

// ImpactScore returns the last computed impact score for id.
func (s *Store) ImpactScore(id ID) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[id]
	if !ok {
		return 0, &NotFoundError{ID: id}
	}
	return p.ImpactScore, nil
}

// ByField returns the validated patterns of field ordered by id.
func (s *Store) ByField(field Field) []Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byField[field]
	out := make([]Pattern, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.patterns[id])
	}
	return out
}

// All returns every pattern, including rejected ones, ordered by id.
func (s *Store) All() []Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetImpact records a recomputed impact score. Only validated patterns carry
// a score; anything else is refused.
//
// Persisting the score is best effort: scores are derived from edges and are
// recomputed on restore, so a failed write is logged rather than returned.
func (s *Store) SetImpact(ctx context.Context, id ID, score float64) error {
	s.mu.Lock()
	p, ok := s.patterns[id]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	if p.Status != StatusValidated {
		s.mu.Unlock()
		return fmt.Errorf("set impact: pattern %s is %s", id, p.Status)
	}
	p.ImpactScore = score
	snapshot := *p
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SavePattern(ctx, snapshot); err != nil {
			slog.Warn("failed to persist impact score", "id", id, "error", err)
		}
	}
	return nil
}

// Restore loads previously persisted patterns. Patterns already present
// are skipped. The id clock is advanced past the highest restored id.
//
// Validated patterns whose digest collides with one already indexed are
// kept by id but not re-indexed, so the lowest id wins.
func (s *Store) Restore(patterns []Pattern) {
	sorted := make([]Pattern, len(patterns))
	copy(sorted, patterns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range sorted {
		if _, exists := s.patterns[p.ID]; exists {
			continue
		}
		if p.Digest == "" {
			p.Digest = Digest(p.Field, p.Payload)
		}
		s.clock.advanceTo(int64(p.ID))
		if p.Status == StatusValidated {
			if _, dup := s.byDigest[p.Digest]; dup {
				cp := p
				s.patterns[p.ID] = &cp
				continue
			}
		}
		s.insertLocked(p)
	}
}

// Stats returns per-field counts.
func (s *Store) Stats() map[Field]FieldStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[Field]FieldStats, len(s.registry))
	for f := range s.registry {
		stats[f] = FieldStats{}
	}
	for _, p := range s.patterns {
		fs := stats[p.Field]
		switch p.Status {
		case StatusValidated:
			fs.Validated++
		case StatusRejected:
			fs.Rejected++
		}
		stats[p.Field] = fs
	}
	return stats
}
