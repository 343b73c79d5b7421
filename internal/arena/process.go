package arena

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dojo/internal/metrics"
	"github.com/roach88/dojo/internal/privilege"
)

// ProcessNext takes the oldest task whose domain is not already being
// processed and runs it to completion.
//
// It returns (nil, nil) when no task is ready, or when the dequeued task
// was cancelled, here or by another process, before it was assigned.
// Otherwise the Outcome
// describes the task's final state; a non-nil error is the reason the task
// failed (or ErrCodeBusy, in which case the task stays Queued).
//
// For the task's domain, an existing Deployed specialist, or one halted
// awaiting deploy, is reused. Otherwise a new specialist is spawned,
// trained on the graph's applicable patterns and benchmarked.
func (a *Arena) ProcessNext(ctx context.Context) (*Outcome, error) {
	entry, ok := a.queue.TryDequeue()
	if !ok {
		return nil, nil
	}
	metrics.SetQueueDepth(a.queue.Len())

	release, err := a.acquire(ctx, a.domainLocks, entry.domain)
	if err != nil {
		a.queue.Requeue(entry)
		metrics.SetQueueDepth(a.queue.Len())
		if ae, ok := err.(*Error); ok {
			ae.TaskID = entry.task
		}
		return nil, err
	}
	defer a.queue.Done(entry.domain)
	defer release()

	if !a.queue.Take(entry.task) {
		slog.Debug("task withdrawn before assignment", "task", entry.task, "domain", entry.domain)
		return nil, nil
	}
	return a.process(ctx, entry.task)
}

// process runs one dequeued task. Caller holds the task's domain lock.
func (a *Arena) process(ctx context.Context, id TaskID) (*Outcome, error) {
	t, err := a.Task(id)
	if err != nil {
		return nil, err
	}

	if persisted, ok := a.persistedTask(ctx, id); ok && persisted.State != TaskQueued {
		a.mu.Lock()
		a.tasks[id] = &persisted
		a.mu.Unlock()
		slog.Debug("task settled elsewhere", "task", id, "state", persisted.State)
		return nil, nil
	}

	assigned := t
	assigned.State = TaskAssigned
	assigned.UpdatedAt = a.now().UTC()
	if err := a.saveTask(ctx, assigned); err != nil {
		// Nothing happened yet; the task fails without touching specialists.
		out := a.finishTask(ctx, id, TaskFailed, "", err)
		return &Outcome{Task: out}, fmt.Errorf("assign task %s: %w", id, err)
	}
	a.mu.Lock()
	a.tasks[id] = &assigned
	a.mu.Unlock()

	slog.Debug("task assigned", "task", id, "domain", t.Domain)

	if err := a.authorize(t.RequestedPrivilege, privilege.ActionTrain); err != nil {
		out := a.finishTask(ctx, id, TaskFailed, "", err)
		return &Outcome{Task: out}, err
	}

	if existing, ok := a.Active(t.Domain); ok {
		if existing.State == SpecialistDeployed || existing.AwaitingDeploy() {
			out := a.finishTask(ctx, id, TaskCompleted, existing.ID, nil)
			slog.Debug("specialist reused", "task", id, "specialist", existing.ID, "state", existing.State)
			return &Outcome{Task: out, Specialist: &existing, Reused: true}, nil
		}
		err := &Error{Code: ErrCodeSpawnConflict, Domain: t.Domain, TaskID: id, ExistingID: existing.ID}
		out := a.finishTask(ctx, id, TaskFailed, "", err)
		return &Outcome{Task: out, Specialist: &existing}, err
	}

	s, err := a.spawn(ctx, t.Domain, t.RequestedPrivilege)
	if err != nil {
		out := a.finishTask(ctx, id, TaskFailed, "", err)
		return &Outcome{Task: out}, err
	}

	s, err = a.develop(ctx, s, t.RequestedPrivilege)
	if err != nil {
		out := a.finishTask(ctx, id, TaskFailed, s.ID, err)
		return &Outcome{Task: out, Specialist: &s}, err
	}

	out := a.finishTask(ctx, id, TaskCompleted, s.ID, nil)
	return &Outcome{Task: out, Specialist: &s}, nil
}

// persistedTask reads id back from the repository when it can. Read
// failures are logged and treated as no record; memory stays authoritative.
func (a *Arena) persistedTask(ctx context.Context, id TaskID) (Task, bool) {
	r, ok := a.repo.(TaskReader)
	if !ok {
		return Task{}, false
	}
	t, err := r.GetTask(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("failed to read persisted task", "task", id, "error", err)
		}
		return Task{}, false
	}
	return t, true
}

// Run processes tasks with the given number of workers until ctx is
// cancelled or Stop is called and the queue has drained.
//
// On task failure the error is logged with the task context and the worker
// continues with the next task.
func (a *Arena) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	slog.Info("arena starting", "workers", workers, "queue_bound", a.queueBound)

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			return a.work(gctx, w)
		})
	}

	err := g.Wait()
	if err != nil {
		a.queue.Close()
	}
	return err
}

func (a *Arena) work(ctx context.Context, worker int) error {
	for {
		if ctx.Err() != nil {
			slog.Info("arena worker stopping: context cancelled", "worker", worker)
			return ctx.Err()
		}

		out, err := a.ProcessNext(ctx)
		if err != nil {
			logTaskError(worker, out, err)
		}
		if out != nil || err != nil {
			continue
		}

		// Nothing ready. A closed queue with nothing dequeueable is drained
		// from this worker's point of view; entries of claimed domains are
		// finished by the worker holding the domain.
		if a.queue.Closed() {
			slog.Info("arena worker stopping: queue closed", "worker", worker)
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("arena worker stopping: context cancelled", "worker", worker)
			return ctx.Err()
		case <-a.queue.Wait():
		}
	}
}

func logTaskError(worker int, out *Outcome, err error) {
	attrs := []any{"worker", worker, "error", err}
	if out != nil {
		attrs = append(attrs,
			"task", out.Task.ID,
			"domain", out.Task.Domain,
			"state", out.Task.State)
		if out.Specialist != nil {
			attrs = append(attrs, "specialist", out.Specialist.ID, "specialist_state", out.Specialist.State)
		}
	}
	slog.Warn("task failed", attrs...)
}

// Stop closes the queue. Waiting tasks are still processed by Run; new
// submissions fail with ErrCodeQueueClosed.
func (a *Arena) Stop() {
	a.queue.Close()
}
