package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

func TestSavePattern_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	p := createTestPattern(1, pattern.FieldAlgebra, "a+b=b+a")
	require.NoError(t, s.SavePattern(ctx, p))

	got, err := s.GetPattern(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSavePattern_UpsertKeepsImmutableColumns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	p := createTestPattern(1, pattern.FieldAlgebra, "a+b=b+a")
	require.NoError(t, s.SavePattern(ctx, p))

	updated := p
	updated.ImpactScore = 2.5
	updated.Payload = "ignored"
	require.NoError(t, s.SavePattern(ctx, updated))

	got, err := s.GetPattern(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.5, got.ImpactScore)
	assert.Equal(t, "a+b=b+a", got.Payload)
}

func TestGetPattern_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetPattern(context.Background(), 42)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestSaveEdge_RequiresStoredEndpoints(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.SaveEdge(ctx, graph.Edge{ID: 1, Source: 1, Target: 2, Kind: graph.KindDerivesFrom, Weight: 1, CreatedAt: at(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save edge R1")
}

func TestSaveEdge_DuplicateIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePattern(ctx, createTestPattern(1, pattern.FieldAlgebra, "x=x")))
	require.NoError(t, s.SavePattern(ctx, createTestPattern(2, pattern.FieldAlgebra, "y=y")))

	e := graph.Edge{ID: 1, Source: 1, Target: 2, Kind: graph.KindDerivesFrom, Weight: 0.5, CreatedAt: at(3)}
	require.NoError(t, s.SaveEdge(ctx, e))

	dup := e
	dup.Weight = 0.9
	require.NoError(t, s.SaveEdge(ctx, dup))

	edges, err := s.LoadEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, e, edges[0])
}

func TestPatternEdges_MatchesEitherEndpoint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for id := pattern.ID(1); id <= 3; id++ {
		require.NoError(t, s.SavePattern(ctx, createTestPattern(id, pattern.FieldAlgebra, id.String()+"=1")))
	}
	require.NoError(t, s.SaveEdge(ctx, graph.Edge{ID: 1, Source: 1, Target: 2, Kind: graph.KindDerivesFrom, Weight: 1, CreatedAt: at(4)}))
	require.NoError(t, s.SaveEdge(ctx, graph.Edge{ID: 2, Source: 3, Target: 1, Kind: graph.KindGeneralizes, Weight: 1, CreatedAt: at(5)}))
	require.NoError(t, s.SaveEdge(ctx, graph.Edge{ID: 3, Source: 2, Target: 3, Kind: graph.KindComposesWith, Weight: 1, CreatedAt: at(6)}))

	edges, err := s.PatternEdges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, graph.RelationshipID(1), edges[0].ID)
	assert.Equal(t, graph.RelationshipID(2), edges[1].ID)
}

func TestSaveSpecialist_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sp := createTestSpecialist("s-1", "algebra", arena.SpecialistBenchmarking, 10)
	sp.PatternRefs = []pattern.ID{3, 1}
	sp.Footprint = 128
	sp.CompressionRatio = 7812.5
	sp.Benchmarked = true
	sp.RetirePending = true
	require.NoError(t, s.SaveSpecialist(ctx, sp))

	got, err := s.GetSpecialist(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sp, got)

	sp.State = arena.SpecialistDeployed
	sp.RetirePending = false
	sp.UpdatedAt = at(20)
	require.NoError(t, s.SaveSpecialist(ctx, sp))

	got, err = s.GetSpecialist(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, arena.SpecialistDeployed, got.State)
	assert.False(t, got.RetirePending)
	assert.Equal(t, at(10), got.CreatedAt)
	assert.Equal(t, at(20), got.UpdatedAt)
}

func TestSaveSpecialist_NoRefs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSpecialist(ctx, createTestSpecialist("s-1", "algebra", arena.SpecialistQueued, 0)))

	var refs string
	require.NoError(t, s.db.QueryRow("SELECT pattern_refs FROM specialists WHERE id = 's-1'").Scan(&refs))
	assert.Equal(t, "[]", refs)

	got, err := s.GetSpecialist(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, got.PatternRefs)
}

func TestSaveTask_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	task := createTestTask("t-1", "algebra+geometry", arena.TaskQueued, 5)
	require.NoError(t, s.SaveTask(ctx, task))

	task.State = arena.TaskFailed
	task.SpecialistID = "s-9"
	task.Error = "training failed"
	task.UpdatedAt = at(9)
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestLoadTasks_SubmissionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTask(ctx, createTestTask("t-b", "algebra", arena.TaskQueued, 2)))
	require.NoError(t, s.SaveTask(ctx, createTestTask("t-c", "algebra", arena.TaskQueued, 1)))
	require.NoError(t, s.SaveTask(ctx, createTestTask("t-a", "algebra", arena.TaskQueued, 2)))

	tasks, err := s.LoadTasks(ctx)
	require.NoError(t, err)

	var ids []arena.TaskID
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []arena.TaskID{"t-c", "t-a", "t-b"}, ids)
}

func TestLoad_EmptyStore(t *testing.T) {
	s := createTestStore(t)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Patterns)
	assert.Empty(t, snap.Edges)
	assert.Empty(t, snap.Specialists)
	assert.Empty(t, snap.Tasks)
	assert.True(t, snap.Recovery().Clean())
}

func TestSaveEscalation_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := privilege.Escalation{
		ID:          "esc-1",
		Subject:     "s-1",
		From:        privilege.Sandboxed,
		To:          privilege.Desktop,
		Reason:      "needs file access",
		State:       privilege.EscalationPending,
		RequestedBy: privilege.Sandboxed,
		RequestedAt: at(1),
	}
	require.NoError(t, s.SaveEscalation(ctx, e))

	got, err := s.GetEscalation(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, e, got)
	assert.True(t, got.DecidedAt.IsZero())

	e.State = privilege.EscalationApproved
	e.ApprovedBy = privilege.Desktop
	e.DecidedAt = at(2)
	require.NoError(t, s.SaveEscalation(ctx, e))

	got, err = s.GetEscalation(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = s.GetEscalation(ctx, "esc-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
