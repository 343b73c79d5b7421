package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("..", "..", "testdata", "scenarios", name))
	require.NoError(t, err)
	return s
}

func TestRun_LinkAndQueryGolden(t *testing.T) {
	scenario := loadTestdata(t, "link_and_query.yaml")

	// Regenerate with: go test ./internal/harness -run TestRun_LinkAndQueryGolden -update
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_TrainAndDeploy(t *testing.T) {
	result, err := Run(loadTestdata(t, "train_and_deploy.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var transitions []string
	for _, ev := range result.Trace {
		if ev.Type == EventTransition {
			transitions = append(transitions, ev.From+"->"+ev.To)
		}
	}
	assert.Equal(t, []string{
		"queued->training",
		"training->benchmarking",
		"benchmarking->deployed",
		"deployed->retired",
	}, transitions)
}

func TestRun_TraceSeqIsContiguous(t *testing.T) {
	result, err := Run(loadTestdata(t, "train_and_deploy.yaml"))
	require.NoError(t, err)

	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario := loadTestdata(t, "train_and_deploy.yaml")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsUnexpectedOutcome(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong-outcome
flow:
  - op: ingest
    args: {field: algebra, payload: "x = x"}
  - op: ingest
    args: {field: algebra, payload: "x = x"}
    expect:
      outcome: ok
  - op: deploy
    args: {specialist: nobody, actor: desktop}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "flow[1] ingest: expected outcome ok, got DUPLICATE")
	assert.Contains(t, result.Errors[1], "flow[2] deploy: expected outcome ok, got NOT_FOUND")
}

func TestRun_ReportsResultMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong-result
flow:
  - op: ingest
    args: {field: algebra, payload: "x = x"}
    expect:
      outcome: ok
      result: {id: P9}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected result")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad-setup
setup:
  - op: ingest
    args: {field: astrology, payload: "x"}
flow:
  - op: process
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (ingest)")
	assert.Contains(t, err.Error(), "UNKNOWN_FIELD")
}

func TestRun_InvalidConfiguration(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad-fields
fields: [Algebra]
flow:
  - op: process
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open dojo")
}

func TestRun_RejectedPatternAndQueueOverflow(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: overflow
fields: [algebra]
queue_bound: 1
flow:
  - op: ingest
    args: {field: algebra, payload: "   "}
    expect: {outcome: MALFORMED_PAYLOAD}
  - op: submit
    args: {domain: algebra, description: first}
    expect: {outcome: ok, result: {task_id: id-1}}
  - op: submit
    args: {domain: algebra, description: second}
    expect: {outcome: QUEUE_OVERFLOW}
  - op: cancel
    args: {task: id-1}
    expect: {outcome: ok, result: {state: cancelled}}
  - op: process
    expect: {outcome: ok, result: {idle: true}}
assertions:
  - type: final_state
    table: tasks
    where: {id: id-1}
    expect: {state: cancelled, description: first}
  - type: trace_count
    op: submit
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", strings.Join(result.Errors, "\n"))
}

func TestRun_TrainingWithoutPatternsFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: empty-domain
flow:
  - op: train
    args: {domain: calculus, actor: desktop}
    expect:
      outcome: TRAINING_FAILED
      result: {specialist_id: id-1, state: failed}
assertions:
  - type: transitions
    specialist: id-1
    states: [training, failed]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
