package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventInvocation, Seq: 1, Op: "ingest", Args: map[string]any{"field": "algebra", "payload": "x"}},
		{Type: EventCompletion, Seq: 2, Outcome: OutcomeOK},
		{Type: EventInvocation, Seq: 3, Op: "train", Args: map[string]any{"domain": "algebra"}},
		{Type: EventTransition, Seq: 4, Specialist: "id-1", From: "queued", To: "training"},
		{Type: EventTransition, Seq: 5, Specialist: "id-1", From: "training", To: "benchmarking"},
		{Type: EventCompletion, Seq: 6, Outcome: OutcomeOK},
		{Type: EventInvocation, Seq: 7, Op: "ingest", Args: map[string]any{"field": "geometry", "payload": "y"}},
		{Type: EventCompletion, Seq: 8, Outcome: OutcomeOK},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Op: "ingest"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: "ingest", Args: map[string]any{"field": "geometry"}}))

	err := assertTraceContains(trace, Assertion{Op: "ingest", Args: map[string]any{"field": "calculus"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in trace")
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{"ingest", "train"}}))

	err := assertTraceOrder(trace, Assertion{Ops: []string{"train", "ingest"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Ops: []string{"ingest", "deploy"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing op: deploy")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Op: "ingest", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: "deploy", Count: 0}))

	err := assertTraceCount(trace, Assertion{Op: "train", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestAssertTransitions(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTransitions(trace, Assertion{Specialist: "id-1", States: []string{"training", "benchmarking"}}))
	assert.NoError(t, assertTransitions(trace, Assertion{Specialist: "id-9"}))

	err := assertTransitions(trace, Assertion{Specialist: "id-1", States: []string{"training", "deployed"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entered [training benchmarking]")
}

func TestEvaluateAssertions_FinalStateNeedsDatabase(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "tasks", Expect: map[string]any{"state": "queued"}},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires database context")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"state": "queued", "benchmarked": true, "id": 3})
	require.NoError(t, err)
	assert.Equal(t, "benchmarked = ? AND id = ? AND state = ?", sql)
	assert.Equal(t, []any{int64(1), int64(3), "queued"}, args)

	_, _, err = buildWhereClause(map[string]any{"state; DROP TABLE tasks": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		equal    bool
	}{
		{"int vs int64", int64(2), 2, true},
		{"int vs float", 2.0, 2, true},
		{"fraction", 2.75, 2.75, true},
		{"bytes vs string", []byte("queued"), "queued", true},
		{"sqlite true", int64(1), true, true},
		{"sqlite false", int64(0), false, true},
		{"bool mismatch", int64(0), true, false},
		{"string mismatch", "a", "b", false},
		{"typed vs yaml list", []any{"P2", "P1"}, []any{"P2", "P1"}, true},
		{"string slice", []string{"P1"}, []any{"P1"}, true},
		{"nested map", map[string]any{"n": int64(1)}, map[string]any{"n": 1}, true},
		{"nil vs value", nil, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestMatchArgs(t *testing.T) {
	actual := map[string]any{"field": "algebra", "payload": "x", "weight": 2.0}

	assert.True(t, matchArgs(actual, nil))
	assert.True(t, matchArgs(actual, map[string]any{"weight": 2}))
	assert.False(t, matchArgs(actual, map[string]any{"actor": "desktop"}))
	assert.False(t, matchArgs(nil, map[string]any{"field": "algebra"}))
}
