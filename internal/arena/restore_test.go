package arena

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
	"github.com/roach88/dojo/internal/testutil"
)

func TestRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, pattern.FieldAlgebra, "a + b = b + a")

	at := testutil.At
	specialists := []Specialist{
		{ID: "deployed", Domain: "algebra", State: SpecialistDeployed, PrivilegeLevel: privilege.Desktop,
			PatternRefs: []pattern.ID{1}, Benchmarked: true, CreatedAt: at(100), UpdatedAt: at(100)},
		{ID: "interrupted", Domain: "geometry", State: SpecialistTraining, PrivilegeLevel: privilege.Desktop,
			CreatedAt: at(101), UpdatedAt: at(101)},
		{ID: "halted", Domain: "calculus", State: SpecialistBenchmarking, PrivilegeLevel: privilege.Sandboxed,
			Benchmarked: true, RetirePending: true, CreatedAt: at(102), UpdatedAt: at(102)},
		{ID: "old", Domain: "algebra", State: SpecialistRetired, CreatedAt: at(50), UpdatedAt: at(60)},
	}
	tasks := []Task{
		{ID: "t-late", Domain: "algebra", State: TaskQueued, RequestedPrivilege: privilege.Desktop, SubmittedAt: at(210)},
		{ID: "t-early", Domain: "algebra", State: TaskQueued, RequestedPrivilege: privilege.Desktop, SubmittedAt: at(200)},
		{ID: "t-running", Domain: "geometry", State: TaskAssigned, RequestedPrivilege: privilege.Desktop, SubmittedAt: at(190)},
		{ID: "t-done", Domain: "algebra", State: TaskCompleted, SpecialistID: "deployed", SubmittedAt: at(180)},
	}

	f.arena.Restore(ctx, specialists, tasks)

	interrupted, err := f.arena.Status("interrupted")
	require.NoError(t, err)
	assert.Equal(t, SpecialistFailed, interrupted.State)
	assert.Equal(t, []string{"training->failed"}, f.transitions("interrupted"))

	halted, err := f.arena.Status("halted")
	require.NoError(t, err)
	assert.Equal(t, SpecialistRetired, halted.State, "a recorded retire request is applied")
	assert.False(t, halted.RetirePending)

	active, ok := f.arena.Active("algebra")
	require.True(t, ok)
	assert.Equal(t, SpecialistID("deployed"), active.ID)

	running, err := f.arena.Task("t-running")
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, running.State)
	assert.Contains(t, running.Error, "restart")

	assert.Equal(t, 2, f.arena.Stats().QueueDepth)

	first, err := f.arena.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskID("t-early"), first.Task.ID, "queued tasks resume in submission order")
	assert.True(t, first.Reused)
	assert.Equal(t, SpecialistID("deployed"), first.Specialist.ID)

	second, err := f.arena.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskID("t-late"), second.Task.ID)

	persisted, ok := f.repo.specialist("interrupted")
	require.True(t, ok)
	assert.Equal(t, SpecialistFailed, persisted.State)
}

func TestRestore_DuplicateActiveKeepsOldest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f.arena.Restore(ctx, []Specialist{
		{ID: "newer", Domain: "algebra", State: SpecialistDeployed, CreatedAt: now.Add(time.Hour)},
		{ID: "older", Domain: "algebra", State: SpecialistDeployed, CreatedAt: now},
	}, nil)

	active, ok := f.arena.Active("algebra")
	require.True(t, ok)
	assert.Equal(t, SpecialistID("older"), active.ID)

	newer, err := f.arena.Status("newer")
	require.NoError(t, err)
	assert.Equal(t, SpecialistFailed, newer.State)
}

func TestLoad_KeepsRecordsAsPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	at := testutil.At
	specialists := []Specialist{
		{ID: "busy", Domain: "geometry", State: SpecialistTraining, PrivilegeLevel: privilege.Desktop,
			RetirePending: true, CreatedAt: at(1), UpdatedAt: at(1)},
	}
	tasks := []Task{
		{ID: "t-running", Domain: "geometry", State: TaskAssigned, SubmittedAt: at(2)},
		{ID: "t-waiting", Domain: "algebra", State: TaskQueued, SubmittedAt: at(3)},
	}

	f.arena.Load(specialists, tasks)

	busy, err := f.arena.Status("busy")
	require.NoError(t, err)
	assert.Equal(t, SpecialistTraining, busy.State)
	assert.True(t, busy.RetirePending)
	assert.Empty(t, f.events.Events(), "nothing is repaired")

	running, err := f.arena.Task("t-running")
	require.NoError(t, err)
	assert.Equal(t, TaskAssigned, running.State)
	_, persisted := f.repo.task("t-running")
	assert.False(t, persisted, "nothing is written")

	assert.Equal(t, 1, f.arena.Stats().QueueDepth)
	require.NoError(t, f.arena.Cancel(ctx, "t-waiting"), "loaded queued tasks can be cancelled")
}

func TestAdopt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, pattern.FieldAlgebra, "a + 0 = a")

	at := testutil.At
	own := f.submit(t, "algebra", privilege.Desktop)
	foreign := []Task{
		{ID: "t-later", Domain: "algebra", State: TaskQueued, RequestedPrivilege: privilege.Desktop, SubmittedAt: at(200)},
		{ID: "t-sooner", Domain: "algebra", State: TaskQueued, RequestedPrivilege: privilege.Desktop, SubmittedAt: at(100)},
		{ID: "t-finished", Domain: "geometry", State: TaskCompleted, SubmittedAt: at(50)},
	}

	assert.Equal(t, 2, f.arena.Adopt(ctx, foreign))
	assert.Equal(t, 3, f.arena.Stats().QueueDepth)
	finished, err := f.arena.Task("t-finished")
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, finished.State)

	assert.Zero(t, f.arena.Adopt(ctx, foreign), "adopting twice enqueues nothing")

	cancelled, err := f.arena.Task(own)
	require.NoError(t, err)
	cancelled.State = TaskCancelled
	assert.Zero(t, f.arena.Adopt(ctx, []Task{cancelled}))
	own2, err := f.arena.Task(own)
	require.NoError(t, err)
	assert.Equal(t, TaskCancelled, own2.State, "a task cancelled elsewhere is withdrawn")
	assert.Equal(t, 2, f.arena.Stats().QueueDepth)

	out, err := f.arena.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskID("t-sooner"), out.Task.ID)
	out, err = f.arena.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskID("t-later"), out.Task.ID)
	assert.True(t, out.Reused)
}
