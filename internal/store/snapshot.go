package store

import (
	"context"
	"fmt"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/pattern"
)

// Snapshot is the full persisted state, used to rebuild the in-memory
// components after a restart.
type Snapshot struct {
	Patterns    []pattern.Pattern
	Edges       []graph.Edge
	Specialists []arena.Specialist
	Tasks       []arena.Task
}

// Load reads the full persisted state. It is meant for startup, before any
// component starts writing; records saved while Load runs may or may not be
// included.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Patterns, err = s.LoadPatterns(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Edges, err = s.LoadEdges(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Specialists, err = s.LoadSpecialists(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Tasks, err = s.LoadTasks(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	return snap, nil
}

// Recovery summarizes what a restore of the snapshot will have to repair.
type Recovery struct {
	// InterruptedSpecialists were mid-training when the process stopped.
	InterruptedSpecialists int
	// PendingRetires were retired during a step that never finished.
	PendingRetires int
	// QueuedTasks will be resubmitted in order.
	QueuedTasks int
	// InterruptedTasks were assigned and will be failed.
	InterruptedTasks int
}

// Clean reports whether the snapshot was taken after an orderly shutdown.
func (r Recovery) Clean() bool {
	return r.InterruptedSpecialists == 0 && r.PendingRetires == 0 && r.InterruptedTasks == 0
}

// Recovery analyzes the snapshot.
func (snap Snapshot) Recovery() Recovery {
	var r Recovery
	for _, sp := range snap.Specialists {
		switch sp.State {
		case arena.SpecialistQueued, arena.SpecialistTraining:
			r.InterruptedSpecialists++
		}
		if sp.RetirePending && !sp.State.IsTerminal() {
			r.PendingRetires++
		}
	}
	for _, t := range snap.Tasks {
		switch t.State {
		case arena.TaskQueued:
			r.QueuedTasks++
		case arena.TaskAssigned:
			r.InterruptedTasks++
		}
	}
	return r
}
