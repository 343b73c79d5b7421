package arena

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/dojo/internal/metrics"
)

// Restore loads persisted specialists and tasks. It must be called before
// Run and before any submission.
//
// Steps cannot resume after a restart, so:
//   - specialists left Queued or Training are marked Failed
//   - tasks left Assigned are marked Failed
//   - Queued tasks are re-enqueued in submission order, ignoring the bound
//   - retire requests recorded mid-step are applied
//
// If two non-terminal specialists share a domain, the oldest is kept and
// the other is marked Failed.
func (a *Arena) Restore(ctx context.Context, specialists []Specialist, tasks []Task) {
	sorted := slices.Clone(specialists)
	slices.SortFunc(sorted, func(x, y Specialist) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})

	var interrupted, duplicates, pendingRetire []SpecialistID

	a.mu.Lock()
	for _, s := range sorted {
		if _, exists := a.specialists[s.ID]; exists {
			continue
		}
		stored := s.clone()
		a.specialists[s.ID] = &stored

		if s.State.IsTerminal() {
			continue
		}
		if _, taken := a.active[s.Domain]; taken {
			duplicates = append(duplicates, s.ID)
			continue
		}
		a.active[s.Domain] = s.ID

		switch {
		case s.State == SpecialistQueued || s.State == SpecialistTraining:
			interrupted = append(interrupted, s.ID)
		case s.RetirePending:
			pendingRetire = append(pendingRetire, s.ID)
		}
	}
	a.mu.Unlock()

	for _, id := range interrupted {
		a.abandon(ctx, id, "interrupted by restart")
	}
	for _, id := range duplicates {
		a.abandon(ctx, id, "duplicate non-terminal specialist for domain")
	}
	for _, id := range pendingRetire {
		a.applyPendingRetire(ctx, id)
	}

	queued := slices.Clone(tasks)
	slices.SortFunc(queued, compareSubmission)

	requeued := 0
	for _, t := range queued {
		a.mu.Lock()
		_, exists := a.tasks[t.ID]
		if !exists {
			cp := t
			a.tasks[t.ID] = &cp
		}
		a.mu.Unlock()
		if exists {
			continue
		}

		switch t.State {
		case TaskQueued:
			a.queue.force(queueEntry{task: t.ID, domain: t.Domain})
			requeued++
		case TaskAssigned:
			a.finishTask(ctx, t.ID, TaskFailed, t.SpecialistID, errors.New("interrupted by restart"))
		}
	}

	slog.Info("arena restored",
		"specialists", len(sorted),
		"tasks", len(tasks),
		"requeued", requeued,
		"interrupted", len(interrupted))
	metrics.SetQueueDepth(a.queue.Len())
}

// Load records persisted specialists and tasks as they are, without any of
// Restore's repairs. Queued tasks are enqueued so they can be cancelled.
// It is meant for processes that share the store with a running server and
// do not run workers themselves: the server owns in-flight work, so
// nothing here may mark it failed.
func (a *Arena) Load(specialists []Specialist, tasks []Task) {
	a.mu.Lock()
	for _, s := range specialists {
		if _, exists := a.specialists[s.ID]; exists {
			continue
		}
		stored := s.clone()
		a.specialists[s.ID] = &stored
		if !s.State.IsTerminal() {
			if _, taken := a.active[s.Domain]; !taken {
				a.active[s.Domain] = s.ID
			}
		}
	}
	a.mu.Unlock()

	queued := slices.Clone(tasks)
	slices.SortFunc(queued, compareSubmission)
	a.adopt(queued)

	slog.Debug("arena loaded", "specialists", len(specialists), "tasks", len(tasks))
	metrics.SetQueueDepth(a.queue.Len())
}

// Adopt reconciles the arena with tasks written by other processes:
//   - unknown tasks are recorded, and Queued ones are enqueued in
//     submission order
//   - a task still waiting here that was cancelled elsewhere is withdrawn
//
// Tasks this arena has already handed to a worker are left alone. Returns
// the number of tasks enqueued.
func (a *Arena) Adopt(ctx context.Context, tasks []Task) int {
	sorted := slices.Clone(tasks)
	slices.SortFunc(sorted, compareSubmission)

	for _, t := range sorted {
		if t.State != TaskCancelled {
			continue
		}
		cur, err := a.Task(t.ID)
		if err != nil || cur.State != TaskQueued {
			continue
		}
		found, _ := a.queue.Remove(t.ID, nil)
		if !found {
			continue
		}
		a.mu.Lock()
		cp := t
		a.tasks[t.ID] = &cp
		a.mu.Unlock()
		slog.Debug("task cancelled elsewhere", "task", t.ID, "domain", t.Domain)
	}

	n := a.adopt(sorted)
	if n > 0 {
		slog.Info("adopted queued tasks", "count", n)
	}
	metrics.SetQueueDepth(a.queue.Len())
	return n
}

// adopt records the unknown tasks of sorted and enqueues the Queued ones,
// ignoring the bound. Returns the number enqueued.
func (a *Arena) adopt(sorted []Task) int {
	n := 0
	for _, t := range sorted {
		a.mu.Lock()
		_, exists := a.tasks[t.ID]
		if !exists {
			cp := t
			a.tasks[t.ID] = &cp
		}
		a.mu.Unlock()
		if exists || t.State != TaskQueued {
			continue
		}
		a.queue.force(queueEntry{task: t.ID, domain: t.Domain})
		n++
	}
	return n
}
