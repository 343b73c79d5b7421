package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Files(t *testing.T) {
	for _, name := range []string{"link_and_query.yaml", "train_and_deploy.yaml"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("..", "..", "testdata", "scenarios", name))
			require.NoError(t, err)
			assert.NotEmpty(t, s.Name)
			assert.NotEmpty(t, s.Flow)
		})
	}
}

func TestLoadScenario_ResolvesValidators(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: with-validators
validators: predicates.cue
flow:
  - op: process
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "predicates.cue"), s.Validators)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown key",
			yaml: "name: x\nflo: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "flow:\n  - op: process\n",
			want: "name is required",
		},
		{
			name: "empty flow",
			yaml: "name: x\nflow: []\n",
			want: "flow must contain at least one step",
		},
		{
			name: "unknown op",
			yaml: "name: x\nflow:\n  - op: explode\n",
			want: `flow[0]: unknown op "explode"`,
		},
		{
			name: "missing op in setup",
			yaml: "name: x\nsetup:\n  - args: {}\nflow:\n  - op: process\n",
			want: "setup[0]: op is required",
		},
		{
			name: "expect without outcome",
			yaml: "name: x\nflow:\n  - op: process\n    expect:\n      result: {idle: true}\n",
			want: "flow[0]: expect.outcome is required",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\nflow:\n  - op: process\nassertions:\n  - type: vibes\n",
			want: `assertions[0]: unknown assertion type "vibes"`,
		},
		{
			name: "final_state on unknown table",
			yaml: "name: x\nflow:\n  - op: process\nassertions:\n  - type: final_state\n    table: users\n    expect: {id: 1}\n",
			want: "table must be one of",
		},
		{
			name: "final_state without expect",
			yaml: "name: x\nflow:\n  - op: process\nassertions:\n  - type: final_state\n    table: tasks\n",
			want: "expect is required for final_state",
		},
		{
			name: "transitions without specialist",
			yaml: "name: x\nflow:\n  - op: process\nassertions:\n  - type: transitions\n    states: [training]\n",
			want: "specialist is required for transitions",
		},
		{
			name: "trace_order without ops",
			yaml: "name: x\nflow:\n  - op: process\nassertions:\n  - type: trace_order\n",
			want: "ops list is required",
		},
		{
			name: "negative count",
			yaml: "name: x\nflow:\n  - op: process\nassertions:\n  - type: trace_count\n    op: process\n    count: -1\n",
			want: "count must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_AppliesOverrides(t *testing.T) {
	cfg := Config(&Scenario{
		Fields:              []string{"algebra"},
		MinCompressionRatio: 50,
		QueueBound:          2,
	})
	assert.Equal(t, ":memory:", cfg.Store.Path)
	assert.Equal(t, []string{"algebra"}, cfg.Fields)
	assert.Equal(t, 50.0, cfg.Arena.MinCompressionRatio)
	assert.Equal(t, 2, cfg.Arena.QueueBound)
	require.NoError(t, cfg.Validate())
}
