package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dojo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Fields, 8)
	assert.Equal(t, 5*time.Second, cfg.Arena.LockWait.Std())
	assert.Equal(t, 2*time.Second, cfg.Arena.PollInterval.Std())
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1"
fields: [algebra, geometry]
validators: fields.cue
arena:
  queue_bound: 8
  workers: 2
  lock_wait: 250ms
  poll_interval: 500ms
  min_compression_ratio: 5
  baseline_size: 2000
store:
  path: /tmp/dojo.db
notify:
  redis_addr: localhost:6379
  instance: prod
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"algebra", "geometry"}, cfg.Fields)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "fields.cue"), cfg.Validators)
	assert.Equal(t, ArenaConfig{
		QueueBound:          8,
		Workers:             2,
		LockWait:            Duration(250 * time.Millisecond),
		PollInterval:        Duration(500 * time.Millisecond),
		MinCompressionRatio: 5,
		BaselineSize:        2000,
	}, cfg.Arena)
	assert.Equal(t, "/tmp/dojo.db", cfg.Store.Path)
	assert.Equal(t, "localhost:6379", cfg.Notify.RedisAddr)
	assert.Equal(t, "prod", cfg.Notify.Instance)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `version: "1"
arena:
  workers: 9
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Arena.Workers = 9
	assert.Equal(t, want, *cfg)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/dojo.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse(strings.NewReader("version: \"1\"\narena:\n  worker: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
	assert.Contains(t, err.Error(), "worker")
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse(strings.NewReader("arena:\n  lock_wait: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "version",
			yaml: `version: "2"`,
			want: "version must be 1",
		},
		{
			name: "no fields",
			yaml: `fields: []`,
			want: "fields must be min 1",
		},
		{
			name: "duplicate fields",
			yaml: `fields: [algebra, algebra]`,
			want: "fields must not contain duplicates",
		},
		{
			name: "bad field name",
			yaml: `fields: [Algebra]`,
			want: `fields[0]: "Algebra" must be lowercase letters, digits and dashes`,
		},
		{
			name: "workers",
			yaml: "arena:\n  workers: 0",
			want: "arena.workers must be gte 1 (got 0)",
		},
		{
			name: "lock wait",
			yaml: "arena:\n  lock_wait: 0s",
			want: "arena.lock_wait must be gt 0 (got 0s)",
		},
		{
			name: "poll interval",
			yaml: "arena:\n  poll_interval: 0s",
			want: "arena.poll_interval must be gt 0 (got 0s)",
		},
		{
			name: "ratio",
			yaml: "arena:\n  min_compression_ratio: -1",
			want: "arena.min_compression_ratio must be gt 0",
		},
		{
			name: "store path",
			yaml: "store:\n  path: \"\"",
			want: "store.path is required",
		},
		{
			name: "redis without instance",
			yaml: "notify:\n  redis_addr: localhost:6379",
			want: "notify.instance is required when redis_addr is set",
		},
		{
			name: "redis address",
			yaml: "notify:\n  redis_addr: localhost\n  instance: x",
			want: `notify.redis_addr: "localhost" is not a host:port address`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(ArenaConfig{LockWait: Duration(1500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Contains(t, string(out), "lock_wait: 1.5s")
}
