package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dojo/internal/config"
	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/testutil"
)

// cliEnv runs commands against one database, reopening the dojo for every
// command the way separate invocations would.
type cliEnv struct {
	t     *testing.T
	db    string
	clock *testutil.DeterministicClock
	ids   *testutil.SequenceGenerator
	stdin string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:     t,
		db:    filepath.Join(t.TempDir(), "dojo.db"),
		clock: testutil.NewDeterministicClock(),
		ids:   testutil.NewSequenceGenerator("x"),
	}
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()

	opts := &RootOptions{
		Open: func(ctx context.Context, cfg config.Config, opts ...dojo.Option) (*dojo.System, error) {
			return dojo.Open(ctx, cfg, append([]dojo.Option{dojo.WithNow(e.clock.Now), dojo.WithIDGenerator(e.ids)}, opts...)...)
		},
	}
	cmd := newRootCommand(opts)

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(e.stdin))
	cmd.SetArgs(append([]string{"--db", e.db}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// runJSON runs a command with --format json and decodes the response.
func (e *cliEnv) runJSON(args ...string) (CLIResponse, error) {
	e.t.Helper()

	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestIngestLinkQuery(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.runJSON("ingest", "algebra", "(a+b)^2 = a^2 + 2ab + b^2")
	require.NoError(t, err)
	assert.Equal(t, "P1", dataMap(t, resp)["id"])

	env.stdin = "(a-b)^2 = a^2 - 2ab + b^2\n"
	out, err := env.run("ingest", "algebra", "-")
	require.NoError(t, err)
	assert.Equal(t, "Ingested P2 (algebra)\n", out)

	resp, err = env.runJSON("link", "P2", "1", "--kind", "derives-from")
	require.NoError(t, err)
	link := dataMap(t, resp)
	assert.Equal(t, "R1", link["id"])
	assert.Equal(t, 1.75, link["source_score"])
	assert.Equal(t, 2.25, link["target_score"])

	resp, err = env.runJSON("query", "algebra")
	require.NoError(t, err)
	rows, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)

	first := rows[0].(map[string]any)
	assert.Equal(t, float64(1), first["pattern"].(map[string]any)["id"])
	assert.Equal(t, []any{}, first["related"])
	second := rows[1].(map[string]any)
	assert.Equal(t, []any{float64(1)}, second["related"])

	out, err = env.run("query", "algebra")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "P1"))
	assert.True(t, strings.HasPrefix(lines[2], "P2"))
}

func TestIngest_Refusals(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("ingest", "geometry", "a^2 + b^2 = c^2")
	require.NoError(t, err)

	resp, err := env.runJSON("ingest", "geometry", "a^2 + b^2 = c^2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DUPLICATE", resp.Error.Code)
	assert.Equal(t, map[string]any{"existing_id": "P1"}, resp.Error.Details)

	out, err := env.run("ingest", "astrology", "venus in retrograde")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [UNKNOWN_FIELD]")
}

func TestIngest_Batch(t *testing.T) {
	env := newCLIEnv(t)

	batch := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(batch, []byte(`
- field: calculus
  payload: "d/dx x^n = n x^(n-1)"
- field: calculus
  payload: "d/dx x^n = n x^(n-1)"
- field: calculus
  payload: "d/dx e^x = e^x"
`), 0o644))

	resp, err := env.runJSON("ingest", "--file", batch)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))

	entries, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, entries, 3)
	assert.Equal(t, "P1", entries[0].(map[string]any)["id"])
	assert.Equal(t, "DUPLICATE", entries[1].(map[string]any)["code"])
	assert.Equal(t, "P2", entries[2].(map[string]any)["id"])
}

func TestInspectCompatibleExport(t *testing.T) {
	env := newCLIEnv(t)

	for _, payload := range []string{"1 + 2 + ... + n = n(n+1)/2", "sum of odd numbers = n^2", "1 + 2 + ... + n = n^2"} {
		_, err := env.run("ingest", "arithmetic", payload)
		require.NoError(t, err)
	}
	_, err := env.run("link", "P2", "P1", "--kind", "generalizes")
	require.NoError(t, err)
	_, err = env.run("link", "P3", "P1", "--kind", "conflicts-with")
	require.NoError(t, err)

	resp, err := env.runJSON("inspect", "P1")
	require.NoError(t, err)
	n := dataMap(t, resp)
	assert.Len(t, n["edges"], 2)
	assert.Equal(t, []any{float64(3)}, n["conflicts"])
	assert.Equal(t, []any{}, n["reachable"])

	out, err := env.run("compatible", "P1", "P3")
	require.NoError(t, err)
	assert.Equal(t, "P1 and P3 are in conflict\n", out)

	out, err = env.run("compatible", "P1", "P2")
	require.NoError(t, err)
	assert.Equal(t, "P1 and P2 are compatible\n", out)

	_, err = env.run("inspect", "P9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = env.run("inspect", "not-an-id")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp, err = env.runJSON("export")
	require.Error(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PRIVILEGE_DENIED", resp.Error.Code)

	dest := filepath.Join(t.TempDir(), "graph.json")
	resp, err = env.runJSON("--actor", "desktop", "export", "-o", dest)
	require.NoError(t, err)
	summary := dataMap(t, resp)
	assert.Equal(t, float64(3), summary["patterns"])
	assert.Equal(t, float64(2), summary["edges"])

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var dump dojo.Export
	require.NoError(t, json.Unmarshal(data, &dump))
	assert.Len(t, dump.Patterns, 3)
	assert.Len(t, dump.Edges, 2)
}

func TestTrainDeployRetire(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("ingest", "algebra", "x^2 - 1 = (x-1)(x+1)")
	require.NoError(t, err)

	resp, err := env.runJSON("train", "algebra")
	require.NoError(t, err)
	sp := dataMap(t, resp)
	assert.Equal(t, "x-1", sp["id"])
	assert.Equal(t, "benchmarking", sp["state"])
	assert.Equal(t, true, sp["benchmarked"])

	resp, err = env.runJSON("deploy", "x-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "PRIVILEGE_DENIED", resp.Error.Code)

	out, err := env.run("--actor", "desktop", "deploy", "x-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "x-1 deployed [algebra]"), out)

	resp, err = env.runJSON("train", "algebra")
	require.Error(t, err)
	assert.Equal(t, "SPAWN_CONFLICT", resp.Error.Code)
	assert.Equal(t, map[string]any{"existing_id": "x-1"}, resp.Error.Details)

	resp, err = env.runJSON("list", "--domain", "algebra")
	require.NoError(t, err)
	assert.Len(t, resp.Data, 1)

	resp, err = env.runJSON("retire", "x-1")
	require.NoError(t, err)
	assert.Equal(t, "retired", dataMap(t, resp)["state"])

	resp, err = env.runJSON("status", "nobody")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestEscalateRequestApprove(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("ingest", "algebra", "x^2 - 1 = (x-1)(x+1)")
	require.NoError(t, err)
	_, err = env.run("train", "algebra")
	require.NoError(t, err)

	resp, err := env.runJSON("escalate", "request", "x-1", "--reason", "needs file access")
	require.NoError(t, err)
	req := dataMap(t, resp)
	assert.Equal(t, "x-2", req["id"])
	assert.Equal(t, "pending", req["state"])
	assert.Equal(t, "sandboxed", req["from"])
	assert.Equal(t, "desktop", req["to"])

	resp, err = env.runJSON("escalate", "approve", "x-2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "PRIVILEGE_DENIED", resp.Error.Code)

	out, err := env.run("--actor", "desktop", "escalate", "approve", "x-2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "x-2 approved"), out)

	resp, err = env.runJSON("status", "x-1")
	require.NoError(t, err)
	assert.Equal(t, "desktop", dataMap(t, resp)["privilege_level"])

	resp, err = env.runJSON("--actor", "desktop", "escalate", "approve", "x-2")
	require.Error(t, err)
	assert.Equal(t, "ESCALATION_DECIDED", resp.Error.Code)

	resp, err = env.runJSON("escalate", "request", "x-1")
	require.Error(t, err)
	assert.Equal(t, "INVALID_ESCALATION", resp.Error.Code)
}

func TestSubmitWorkTasks(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("ingest", "discrete", "C(n,k) = n! / (k! (n-k)!)")
	require.NoError(t, err)

	resp, err := env.runJSON("submit", "discrete", "-d", "count subsets", "--priority", "high")
	require.NoError(t, err)
	task := dataMap(t, resp)
	assert.Equal(t, "x-1", task["id"])
	assert.Equal(t, "queued", task["state"])
	assert.Equal(t, "high", task["priority"])

	resp, err = env.runJSON("submit", "discrete", "--priority", "urgent")
	require.Error(t, err)
	assert.Equal(t, "INVALID_TASK", resp.Error.Code)

	_, err = env.run("submit", "discrete", "-d", "again")
	require.NoError(t, err)
	out, err := env.run("cancel", "x-2")
	require.NoError(t, err)
	assert.Contains(t, out, "x-2 cancelled [discrete]")

	// The queued task survives the restart between commands.
	resp, err = env.runJSON("work")
	require.NoError(t, err)
	work := dataMap(t, resp)
	assert.Equal(t, float64(1), work["completed"])
	assert.Equal(t, float64(0), work["failed"])

	resp, err = env.runJSON("task", "x-1")
	require.NoError(t, err)
	task = dataMap(t, resp)
	assert.Equal(t, "completed", task["state"])
	assert.Equal(t, "x-3", task["specialist_id"])

	out, err = env.run("tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "x-1")
	assert.Contains(t, out, "cancelled")

	out, err = env.run("work")
	require.NoError(t, err)
	assert.Equal(t, "0 completed, 0 failed\n", out)
}

func TestStats(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("ingest", "statistics", "Var(X) = E[X^2] - E[X]^2")
	require.NoError(t, err)

	resp, err := env.runJSON("stats")
	require.NoError(t, err)
	st := dataMap(t, resp)
	patterns := st["patterns"].(map[string]any)
	assert.Equal(t, map[string]any{"validated": float64(1), "rejected": float64(0)}, patterns["statistics"])

	out, err := env.run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "relationships: 0")
}

func TestCapabilities_Golden(t *testing.T) {
	env := newCLIEnv(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	out, err := env.run("--format", "json", "capabilities")
	require.NoError(t, err)
	g.Assert(t, "capabilities-sandboxed", []byte(out))

	out, err = env.run("capabilities", "--level", "desktop")
	require.NoError(t, err)
	g.Assert(t, "capabilities-desktop", []byte(out))

	_, err = env.run("capabilities", "--level", "root")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	env := newCLIEnv(t)

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
version: "1"
fields: [algebra, geometry]
arena:
  workers: 2
`), 0o644))

	out, err := env.run("config", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (2 fields)")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
version: "1"
arena:
  workers: 0
`), 0o644))

	resp, err := env.runJSON("config", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "INVALID_CONFIG", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "arena.workers must be gte 1")

	out, err = env.run("--config", good, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "- geometry")
	assert.Contains(t, out, "workers: 2")
	assert.Contains(t, out, "path: "+env.db)
}

func TestOpenFailureIsCommandError(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("--config", filepath.Join(t.TempDir(), "missing.yaml"), "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.False(t, IsReported(err))
	assert.Contains(t, err.Error(), "failed to load configuration")
}
