package dojo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/bench"
	"github.com/roach88/dojo/internal/config"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/notify"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/pattern/cuecheck"
	"github.com/roach88/dojo/internal/privilege"
	"github.com/roach88/dojo/internal/store"
)

// redisPingTimeout bounds the startup connectivity check.
const redisPingTimeout = 3 * time.Second

// System is a fully wired dojo.
type System struct {
	Config   config.Config
	Store    *store.Store
	Patterns *pattern.Store
	Graph    *graph.Graph
	Gate     *privilege.Recorder
	Arena    *arena.Arena

	// Recovery describes what Open repaired while restoring.
	Recovery store.Recovery

	redis *notify.RedisPublisher
}

type options struct {
	sinks    []notify.Sink
	now      func() time.Time
	ids      arena.IDGenerator
	noRepair bool
}

// Option configures Open.
type Option func(*options)

// WithSink adds a lifecycle event sink alongside the configured ones.
func WithSink(s notify.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, s)
	}
}

// WithNow replaces the wall clock of every component.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator replaces the task and specialist id generator.
func WithIDGenerator(g arena.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithoutRepair loads persisted specialists and tasks as they are instead of
// repairing what an unclean shutdown left behind. Use it for short-lived
// processes that share the store with a running server: their view of
// in-flight work is the server's, not an interrupted one.
func WithoutRepair() Option {
	return func(o *options) {
		o.noRepair = true
	}
}

// Open builds a System from cfg and restores its persisted state.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sys := &System{Config: cfg, Store: st}

	sinks := o.sinks
	if cfg.Notify.RedisAddr != "" {
		pub, err := ConnectRedis(ctx, cfg.Notify)
		if err != nil {
			st.Close()
			return nil, err
		}
		sys.redis = pub
		sinks = append(sinks, pub)
	}

	wait := cfg.Arena.LockWait.Std()

	patternOpts := []pattern.Option{pattern.WithRepository(st), pattern.WithLockWait(wait)}
	graphOpts := []graph.Option{graph.WithRepository(st), graph.WithLockWait(wait)}
	gateOpts := []privilege.RecorderOption{privilege.WithEscalations(st)}
	arenaOpts := []arena.Option{
		arena.WithRepository(st),
		arena.WithLockWait(wait),
		arena.WithQueueBound(cfg.Arena.QueueBound),
		arena.WithBenchmarker(bench.Benchmarker{
			Baseline: cfg.Arena.BaselineSize,
			MinRatio: cfg.Arena.MinCompressionRatio,
		}),
	}
	if len(sinks) > 0 {
		arenaOpts = append(arenaOpts, arena.WithSink(notify.Multi(sinks)))
	}
	if o.now != nil {
		patternOpts = append(patternOpts, pattern.WithNow(o.now))
		graphOpts = append(graphOpts, graph.WithNow(o.now))
		arenaOpts = append(arenaOpts, arena.WithNow(o.now))
		gateOpts = append(gateOpts, privilege.WithNow(o.now))
	}
	if o.ids != nil {
		arenaOpts = append(arenaOpts, arena.WithIDGenerator(o.ids))
		gateOpts = append(gateOpts, privilege.WithIDs(o.ids.Generate))
	}

	sys.Patterns = pattern.NewStore(registry, patternOpts...)
	sys.Graph = graph.New(sys.Patterns, graphOpts...)
	sys.Gate = privilege.NewRecorder(privilege.Gate{}, gateOpts...)
	sys.Arena = arena.New(sys.Graph, sys.Gate, append(arenaOpts, arena.WithPatterns(sys.Patterns))...)

	if err := sys.restore(ctx, !o.noRepair); err != nil {
		sys.Close()
		return nil, err
	}

	return sys, nil
}

func (s *System) restore(ctx context.Context, repair bool) error {
	snap, err := s.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	s.Patterns.Restore(snap.Patterns)
	if err := s.Graph.Restore(ctx, snap.Edges); err != nil {
		return fmt.Errorf("restore graph: %w", err)
	}
	if !repair {
		s.Arena.Load(snap.Specialists, snap.Tasks)
		slog.Debug("state loaded without repair",
			"specialists", len(snap.Specialists),
			"tasks", len(snap.Tasks))
		return nil
	}
	s.Arena.Restore(ctx, snap.Specialists, snap.Tasks)

	s.Recovery = snap.Recovery()
	attrs := []any{
		"patterns", len(snap.Patterns),
		"edges", len(snap.Edges),
		"specialists", len(snap.Specialists),
		"tasks", len(snap.Tasks),
	}
	if s.Recovery.Clean() {
		slog.Debug("state restored", attrs...)
	} else {
		slog.Warn("state restored after unclean shutdown", append(attrs,
			"interrupted_specialists", s.Recovery.InterruptedSpecialists,
			"pending_retires", s.Recovery.PendingRetires,
			"interrupted_tasks", s.Recovery.InterruptedTasks)...)
	}
	return nil
}

// CheckValidators compiles cfg's CUE predicates and checks that they only
// name configured fields, without opening anything.
func CheckValidators(cfg config.Config) error {
	_, err := buildRegistry(cfg)
	return err
}

// buildRegistry registers the configured fields and binds the CUE
// predicates, if any.
func buildRegistry(cfg config.Config) (pattern.Registry, error) {
	fields := make([]pattern.Field, len(cfg.Fields))
	for i, f := range cfg.Fields {
		fields[i] = pattern.Field(f)
	}
	reg := pattern.NewRegistry(fields...)

	if cfg.Validators == "" {
		return reg, nil
	}

	predicates, err := cuecheck.LoadFile(cfg.Validators)
	if err != nil {
		return nil, fmt.Errorf("load validators: %w", err)
	}
	for _, f := range predicates.Fields() {
		if _, ok := reg[f]; !ok {
			return nil, fmt.Errorf("load validators: field %q is not configured", f)
		}
		reg = reg.With(f, predicates[f])
	}
	return reg, nil
}

// ConnectRedis opens the lifecycle event publisher described by cfg and
// checks that Redis answers.
func ConnectRedis(ctx context.Context, cfg config.NotifyConfig) (*notify.RedisPublisher, error) {
	pub, err := notify.NewRedisPublisher(&redis.Options{Addr: cfg.RedisAddr}, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := pub.Ping(pingCtx); err != nil {
		pub.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, err)
	}
	return pub, nil
}

// Run processes arena tasks with the configured number of workers until
// ctx is cancelled or Close is called.
func (s *System) Run(ctx context.Context) error {
	return s.Arena.Run(ctx, s.Config.Arena.Workers)
}

// Sync enqueues tasks that other processes queued in the store since this
// System was opened, and withdraws waiting tasks they cancelled. Returns
// the number of tasks enqueued.
func (s *System) Sync(ctx context.Context) (int, error) {
	tasks, err := s.Store.LoadTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync tasks: %w", err)
	}
	return s.Arena.Adopt(ctx, tasks), nil
}

// Poll calls Sync every arena.poll_interval until ctx is cancelled. Sync
// failures are logged and retried on the next tick.
func (s *System) Poll(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.Arena.PollInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("failed to sync tasks from store", "error", err)
			}
		}
	}
}

// Close stops the arena and releases Redis and the store.
func (s *System) Close() error {
	var errs []error
	if s.Arena != nil {
		s.Arena.Stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
