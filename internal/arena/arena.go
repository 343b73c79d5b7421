package arena

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/dojo/internal/bench"
	"github.com/roach88/dojo/internal/lock"
	"github.com/roach88/dojo/internal/metrics"
	"github.com/roach88/dojo/internal/notify"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// DefaultQueueBound is the default maximum number of waiting tasks.
const DefaultQueueBound = 1024

// Selector chooses the patterns a specialist is trained on. Implemented by
// the relationship graph.
type Selector interface {
	Applicable(domain string) []pattern.Pattern
}

// PatternLookup resolves pattern refs. Implemented by the pattern store.
type PatternLookup interface {
	Get(id pattern.ID) (pattern.Pattern, bool)
}

// Repository persists tasks and specialists. Each write is atomic per
// entity; the arena commits in memory only after a write succeeds.
type Repository interface {
	SaveTask(ctx context.Context, t Task) error
	SaveSpecialist(ctx context.Context, s Specialist) error
}

// TaskReader reads a persisted task. A Repository that also implements it
// lets workers notice tasks cancelled by another process sharing the store.
type TaskReader interface {
	GetTask(ctx context.Context, id TaskID) (Task, error)
}

// Arena schedules tasks onto specialists.
//
// Thread-safety model:
//   - Submit, Cancel, Train, Deploy, Retire, Benchmark: safe from any goroutine
//   - ProcessNext / Run: any number of workers; one task per domain at a time
//   - Status, Specialists, Task, Stats: safe from any goroutine
//
// Every mutation of a domain's specialist happens under that domain's lock,
// so transitions within a domain are strictly ordered. Locks are acquired
// with a bounded wait; on expiry the caller receives ErrCodeBusy and
// nothing changes.
type Arena struct {
	selector Selector
	patterns PatternLookup
	gate     privilege.Authorizer
	bench    bench.Benchmarker
	sink     notify.Sink
	repo     Repository
	ids      IDGenerator
	now      func() time.Time

	queueBound  int
	lockWait    time.Duration
	queue       *taskQueue
	domainLocks *lock.Keyed
	submitLock  *lock.Keyed

	seq atomic.Int64

	mu          sync.RWMutex
	tasks       map[TaskID]*Task
	specialists map[SpecialistID]*Specialist
	active      map[string]SpecialistID // domain -> non-terminal specialist
	stepping    map[string]SpecialistID // domain -> specialist mid-step
	retiring    map[SpecialistID]bool   // retire requests deferred until the step ends
}

// Option configures an Arena.
type Option func(*Arena)

// WithBenchmarker sets the baseline and minimum ratio.
func WithBenchmarker(b bench.Benchmarker) Option {
	return func(a *Arena) {
		a.bench = b
	}
}

// WithSink sets the lifecycle event sink.
func WithSink(s notify.Sink) Option {
	return func(a *Arena) {
		a.sink = s
	}
}

// WithRepository persists tasks and specialists.
func WithRepository(r Repository) Option {
	return func(a *Arena) {
		a.repo = r
	}
}

// WithIDGenerator replaces the UUIDv7 id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(a *Arena) {
		a.ids = g
	}
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(a *Arena) {
		a.now = now
	}
}

// WithLockWait bounds every lock acquisition.
func WithLockWait(d time.Duration) Option {
	return func(a *Arena) {
		a.lockWait = d
	}
}

// WithQueueBound sets the maximum number of waiting tasks.
func WithQueueBound(n int) Option {
	return func(a *Arena) {
		a.queueBound = n
	}
}

// WithPatterns lets Benchmark re-resolve a specialist's pattern refs.
func WithPatterns(p PatternLookup) Option {
	return func(a *Arena) {
		a.patterns = p
	}
}

// New creates an Arena. A nil gate selects privilege.Gate{}.
func New(selector Selector, gate privilege.Authorizer, opts ...Option) *Arena {
	if gate == nil {
		gate = privilege.Gate{}
	}

	a := &Arena{
		selector:    selector,
		gate:        gate,
		bench:       bench.Default(),
		sink:        notify.Discard,
		ids:         UUIDv7Generator{},
		now:         time.Now,
		queueBound:  DefaultQueueBound,
		lockWait:    lock.DefaultWait,
		tasks:       make(map[TaskID]*Task),
		specialists: make(map[SpecialistID]*Specialist),
		active:      make(map[string]SpecialistID),
		stepping:    make(map[string]SpecialistID),
		retiring:    make(map[SpecialistID]bool),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.queue = newTaskQueue(a.queueBound)
	a.domainLocks = lock.NewKeyed("domain", a.lockWait)
	a.submitLock = lock.NewKeyed("submit", a.lockWait)
	if a.sink == nil {
		a.sink = notify.Discard
	}

	return a
}

// CanonicalDomain normalizes a domain key: components are trimmed, repeats
// dropped and the rest sorted, so "geometry+algebra" and "algebra+geometry"
// name the same domain. Returns "" if no component remains.
func CanonicalDomain(domain string) string {
	var parts []string
	for _, p := range strings.Split(domain, "+") {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(parts, p) {
			continue
		}
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return strings.Join(parts, "+")
}

// Submit validates req and enqueues a task for it. The requested privilege
// must be allowed to train; otherwise ErrCodePrivilegeDenied is returned
// and nothing is queued.
//
// Returns ErrCodeQueueOverflow when the queue is at its bound, and
// ErrCodeBusy if the submit lock is not acquired in time.
func (a *Arena) Submit(ctx context.Context, req TaskRequest) (TaskID, error) {
	domain := CanonicalDomain(req.Domain)
	if domain == "" {
		return "", &Error{Code: ErrCodeInvalidTask, Reason: "domain is required"}
	}

	level := req.Privilege
	if level == "" {
		level = privilege.Sandboxed
	}
	if _, err := privilege.ParseLevel(string(level)); err != nil {
		return "", &Error{Code: ErrCodeInvalidTask, Domain: domain, Reason: err.Error(), Err: err}
	}

	prio, err := ParsePriority(string(req.Priority))
	if err != nil {
		return "", &Error{Code: ErrCodeInvalidTask, Domain: domain, Reason: err.Error(), Err: err}
	}

	if err := a.authorize(level, privilege.ActionTrain); err != nil {
		err.(*Error).Domain = domain
		return "", err
	}

	release, err := a.acquire(ctx, a.submitLock, "queue")
	if err != nil {
		return "", err
	}
	defer release()

	now := a.now().UTC()
	t := Task{
		ID:                 TaskID(a.ids.Generate()),
		Description:        req.Description,
		Domain:             domain,
		RequestedPrivilege: level,
		Priority:           prio,
		State:              TaskQueued,
		SubmittedAt:        now,
		UpdatedAt:          now,
	}
	entry := queueEntry{task: t.ID, domain: domain}

	if err := a.queue.Admit(entry); err != nil {
		if IsQueueOverflow(err) {
			metrics.RecordTaskOutcome("overflow")
		}
		return "", err
	}

	if err := a.saveTask(ctx, t); err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}

	a.mu.Lock()
	a.tasks[t.ID] = &t
	a.mu.Unlock()

	if err := a.queue.Enqueue(entry); err != nil {
		// Only a concurrent Close gets here; the task never ran.
		a.finishTask(ctx, t.ID, TaskCancelled, "", err)
		return "", err
	}
	metrics.SetQueueDepth(a.queue.Len())

	slog.Debug("task submitted",
		"task", t.ID,
		"domain", domain,
		"privilege", level,
		"priority", prio)

	return t.ID, nil
}

// Cancel cancels a task that is still Queued, including one a worker has
// dequeued but not yet assigned. A task that has been assigned returns
// ErrCodeNotCancellable.
func (a *Arena) Cancel(ctx context.Context, id TaskID) error {
	t, err := a.Task(id)
	if err != nil {
		return err
	}
	if t.State != TaskQueued {
		return &Error{Code: ErrCodeNotCancellable, TaskID: id, Reason: fmt.Sprintf("task is %s", t.State)}
	}

	cancelled := t
	cancelled.State = TaskCancelled
	cancelled.UpdatedAt = a.now().UTC()

	found, err := a.queue.Remove(id, func() error {
		return a.saveTask(ctx, cancelled)
	})
	if !found {
		return &Error{Code: ErrCodeNotCancellable, TaskID: id, Reason: "task has left the queue"}
	}
	if err != nil {
		return fmt.Errorf("cancel task %s: %w", id, err)
	}

	a.mu.Lock()
	a.tasks[id] = &cancelled
	a.mu.Unlock()

	metrics.RecordTaskOutcome("cancelled")
	metrics.SetQueueDepth(a.queue.Len())
	slog.Debug("task cancelled", "task", id, "domain", t.Domain)
	return nil
}

// Status returns a specialist.
func (a *Arena) Status(id SpecialistID) (Specialist, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.specialists[id]
	if !ok {
		return Specialist{}, &Error{Code: ErrCodeNotFound, SpecialistID: id, Reason: fmt.Sprintf("specialist %s not found", id)}
	}
	return s.clone(), nil
}

// Specialists lists the specialists of domain, or all specialists when
// domain is empty, ordered by creation.
func (a *Arena) Specialists(domain string) []Specialist {
	if domain != "" {
		domain = CanonicalDomain(domain)
	}

	a.mu.RLock()
	out := make([]Specialist, 0, len(a.specialists))
	for _, s := range a.specialists {
		if domain == "" || s.Domain == domain {
			out = append(out, s.clone())
		}
	}
	a.mu.RUnlock()

	slices.SortFunc(out, func(x, y Specialist) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return out
}

// Active returns the non-terminal specialist of domain, if any.
func (a *Arena) Active(domain string) (Specialist, bool) {
	domain = CanonicalDomain(domain)

	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.active[domain]
	if !ok {
		return Specialist{}, false
	}
	return a.specialists[id].clone(), true
}

// Task returns a task.
func (a *Arena) Task(id TaskID) (Task, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.tasks[id]
	if !ok {
		return Task{}, &Error{Code: ErrCodeNotFound, TaskID: id, Reason: fmt.Sprintf("task %s not found", id)}
	}
	return *t, nil
}

// Tasks lists every task ordered by submission.
func (a *Arena) Tasks() []Task {
	a.mu.RLock()
	out := make([]Task, 0, len(a.tasks))
	for _, t := range a.tasks {
		out = append(out, *t)
	}
	a.mu.RUnlock()

	slices.SortFunc(out, compareSubmission)
	return out
}

func compareSubmission(x, y Task) int {
	if c := x.SubmittedAt.Compare(y.SubmittedAt); c != 0 {
		return c
	}
	return cmp.Compare(x.ID, y.ID)
}

// Stats returns task and specialist counts.
func (a *Arena) Stats() Stats {
	st := Stats{
		QueueDepth:  a.queue.Len(),
		Tasks:       make(map[TaskState]int),
		Specialists: make(map[SpecialistState]int),
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, t := range a.tasks {
		st.Tasks[t.State]++
	}
	for _, s := range a.specialists {
		st.Specialists[s.State]++
	}
	return st
}

// acquire takes key on l, translating a timeout into ErrCodeBusy.
func (a *Arena) acquire(ctx context.Context, l *lock.Keyed, key string) (func(), error) {
	release, err := l.Acquire(ctx, key)
	if err != nil {
		if lock.IsBusy(err) {
			return nil, &Error{Code: ErrCodeBusy, Domain: key, Err: err}
		}
		return nil, err
	}
	return release, nil
}

func (a *Arena) authorize(level privilege.Level, action privilege.Action) error {
	d := a.gate.Authorize(level, action)
	if d.Allowed {
		return nil
	}
	return &Error{Code: ErrCodePrivilegeDenied, Reason: d.Reason}
}

func (a *Arena) saveTask(ctx context.Context, t Task) error {
	if a.repo == nil {
		return nil
	}
	return a.repo.SaveTask(ctx, t)
}

func (a *Arena) saveSpecialist(ctx context.Context, s Specialist) error {
	if a.repo == nil {
		return nil
	}
	return a.repo.SaveSpecialist(ctx, s)
}
