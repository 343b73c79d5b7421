package arena

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dojo/internal/bench"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/notify"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
	"github.com/roach88/dojo/internal/testutil"
)

// fixture wires a real pattern store and graph to an arena.
type fixture struct {
	patterns *pattern.Store
	graph    *graph.Graph
	arena    *Arena
	events   *notify.Recorder
	gate     *privilege.Recorder
	repo     *memRepo
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := pattern.NewStore(pattern.NewRegistry(pattern.DefaultFields...))
	g := graph.New(store)
	events := notify.NewRecorder()
	gate := privilege.NewRecorder(nil)
	repo := newMemRepo()
	clock := testutil.NewDeterministicClock()

	base := []Option{
		WithSink(events),
		WithRepository(repo),
		WithIDGenerator(testutil.NewSequenceGenerator("id")),
		WithNow(clock.Now),
		WithPatterns(store),
		WithBenchmarker(bench.Default()),
		WithLockWait(2 * time.Second),
	}

	return &fixture{
		patterns: store,
		graph:    g,
		arena:    New(g, gate, append(base, opts...)...),
		events:   events,
		gate:     gate,
		repo:     repo,
	}
}

func (f *fixture) ingest(t *testing.T, field pattern.Field, payload string) pattern.ID {
	t.Helper()
	id, err := f.patterns.Ingest(context.Background(), field, payload)
	require.NoError(t, err)
	return id
}

func (f *fixture) submit(t *testing.T, domain string, level privilege.Level) TaskID {
	t.Helper()
	id, err := f.arena.Submit(context.Background(), TaskRequest{
		Description: "train " + domain,
		Domain:      domain,
		Privilege:   level,
	})
	require.NoError(t, err)
	return id
}

// transitions renders a specialist's events as "from->to".
func (f *fixture) transitions(id SpecialistID) []string {
	var out []string
	for _, ev := range f.events.For(string(id)) {
		out = append(out, ev.From+"->"+ev.To)
	}
	return out
}

// memRepo is an in-memory Repository that can be told to fail.
type memRepo struct {
	mu          sync.Mutex
	tasks       map[TaskID]Task
	specialists map[SpecialistID]Specialist
	taskErr     error
	specErr     error
}

func newMemRepo() *memRepo {
	return &memRepo{
		tasks:       make(map[TaskID]Task),
		specialists: make(map[SpecialistID]Specialist),
	}
}

func (r *memRepo) SaveTask(_ context.Context, t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taskErr != nil {
		return r.taskErr
	}
	r.tasks[t.ID] = t
	return nil
}

func (r *memRepo) SaveSpecialist(_ context.Context, s Specialist) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.specErr != nil {
		return r.specErr
	}
	r.specialists[s.ID] = s.clone()
	return nil
}

func (r *memRepo) specialist(id SpecialistID) (Specialist, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.specialists[id]
	return s, ok
}

func (r *memRepo) task(id TaskID) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

func (r *memRepo) failSpecialists(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specErr = err
}

func (r *memRepo) failTasks(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taskErr = err
}

// selectorFunc adapts a function to Selector.
type selectorFunc func(domain string) []pattern.Pattern

func (f selectorFunc) Applicable(domain string) []pattern.Pattern {
	return f(domain)
}

// gatedRepo wraps memRepo and parks the first specialist write that
// reaches state until open is closed.
type gatedRepo struct {
	*memRepo
	state   SpecialistState
	once    sync.Once
	reached chan struct{}
	open    chan struct{}
}

func newGatedRepo(state SpecialistState) *gatedRepo {
	return &gatedRepo{
		memRepo: newMemRepo(),
		state:   state,
		reached: make(chan struct{}),
		open:    make(chan struct{}),
	}
}

func (r *gatedRepo) SaveSpecialist(ctx context.Context, s Specialist) error {
	if s.State == r.state {
		parked := false
		r.once.Do(func() { parked = true })
		if parked {
			close(r.reached)
			<-r.open
		}
	}
	return r.memRepo.SaveSpecialist(ctx, s)
}
