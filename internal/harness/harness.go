package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/config"
	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/notify"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
	"github.com/roach88/dojo/internal/testutil"
)

// Harness executes the steps of one scenario against one System.
type Harness struct {
	sys    *dojo.System
	events *notify.Recorder
	seen   int
	seq    *testutil.DeterministicClock
	logger *slog.Logger
}

// Config builds the dojo configuration a scenario runs with.
func Config(s *Scenario) config.Config {
	cfg := config.Default()
	cfg.Store.Path = ":memory:"
	if len(s.Fields) > 0 {
		cfg.Fields = append([]string(nil), s.Fields...)
	}
	cfg.Validators = s.Validators
	if s.MinCompressionRatio > 0 {
		cfg.Arena.MinCompressionRatio = s.MinCompressionRatio
	}
	if s.QueueBound > 0 {
		cfg.Arena.QueueBound = s.QueueBound
	}
	return cfg
}

// Run executes a scenario and returns its result.
//
// Each run uses a fresh in-memory database, a deterministic clock and ids
// "id-1", "id-2", ... for tasks and specialists. No workers are started;
// queued tasks run only through "process" steps.
//
// An error is returned when the scenario cannot run at all (bad
// configuration, failing setup). Failed expectations are reported in the
// Result instead.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	events := notify.NewRecorder()
	clock := testutil.NewDeterministicClock()
	sys, err := dojo.Open(ctx, Config(scenario),
		dojo.WithSink(events),
		dojo.WithNow(clock.Now),
		dojo.WithIDGenerator(testutil.NewSequenceGenerator("id")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open dojo: %w", err)
	}
	defer sys.Close()

	h := &Harness{
		sys:    sys,
		events: events,
		seq:    testutil.NewDeterministicClock(),
		logger: slog.Default().With("scenario", scenario.Name),
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	h.executeFlow(ctx, scenario.Flow, result)

	actx := &AssertionContext{DB: sys.Store.DB(), Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSetup runs the setup steps. Any failure aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		if _, err := h.step(ctx, step.Op, step.Args, result); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
	}
	return nil
}

// executeFlow runs the flow, checking each step against its expect clause.
// A step without one is expected to succeed.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		out, err := h.step(ctx, step.Op, step.Args, result)

		outcome := OutcomeOK
		if err != nil {
			outcome = dojo.ErrorCode(err)
		}

		expect := step.Expect
		if expect == nil {
			expect = &ExpectClause{Outcome: OutcomeOK}
		}
		if outcome != expect.Outcome {
			msg := fmt.Sprintf("flow[%d] %s: expected outcome %s, got %s", i, step.Op, expect.Outcome, outcome)
			if err != nil {
				msg += fmt.Sprintf(" (%v)", err)
			}
			result.AddError(msg)
			continue
		}
		if !matchArgs(out, expect.Result) {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v", i, step.Op, expect.Result, out))
		}
	}
}

// step invokes one operation and records it in the trace.
func (h *Harness) step(ctx context.Context, op string, args map[string]any, result *Result) (map[string]any, error) {
	result.AddInvocationTrace(op, args, h.seq.Next())

	out, err := h.invoke(ctx, op, args)

	for _, ev := range h.drainEvents() {
		result.AddTransitionTrace(ev, h.seq.Next())
	}

	outcome, message := OutcomeOK, ""
	if err != nil {
		outcome, message = dojo.ErrorCode(err), err.Error()
		h.logger.Debug("step failed", "op", op, "error", err)
	}
	result.AddCompletionTrace(outcome, out, message, h.seq.Next())
	return out, err
}

// drainEvents returns the lifecycle events published since the last call.
func (h *Harness) drainEvents() []notify.StateChanged {
	all := h.events.Events()
	fresh := all[h.seen:]
	h.seen = len(all)
	return fresh
}

// invoke dispatches op to the System boundary.
func (h *Harness) invoke(ctx context.Context, op string, args map[string]any) (map[string]any, error) {
	a := stepArgs(args)

	actor, err := a.actor()
	if err != nil {
		return nil, err
	}

	switch op {
	case OpIngest:
		id, err := h.sys.Ingest(ctx, actor, pattern.Field(a.str("field")), a.str("payload"))
		if err != nil {
			var ve *pattern.ValidationError
			if errors.As(err, &ve) && ve.RejectedID != 0 {
				return map[string]any{"rejected_id": ve.RejectedID.String()}, err
			}
			return nil, err
		}
		return map[string]any{"id": id.String()}, nil

	case OpLink:
		source, err := a.patternID("source")
		if err != nil {
			return nil, err
		}
		target, err := a.patternID("target")
		if err != nil {
			return nil, err
		}
		kind := graph.Kind(a.str("kind"))
		rid, err := h.sys.Link(ctx, actor, source, target, kind, a.float("weight", 1))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"id":           rid.String(),
			"source_score": h.sys.Graph.Score(source),
			"target_score": h.sys.Graph.Score(target),
		}, nil

	case OpQuery:
		var kinds []graph.Kind
		for _, k := range a.strs("kinds") {
			kinds = append(kinds, graph.Kind(k))
		}
		rows, err := h.sys.Query(actor, a.str("domain"), kinds...)
		if err != nil {
			return nil, err
		}
		ids := make([]any, 0, len(rows))
		related := make(map[string]any, len(rows))
		for _, r := range rows {
			ids = append(ids, r.Pattern.ID.String())
			rel := make([]any, 0, len(r.Related))
			for _, id := range r.Related {
				rel = append(rel, id.String())
			}
			related[r.Pattern.ID.String()] = rel
		}
		return map[string]any{"patterns": ids, "related": related}, nil

	case OpTrain:
		id, err := h.sys.Train(ctx, actor, a.str("domain"))
		if id == "" {
			return nil, err
		}
		return h.specialistResult(id), err

	case OpDeploy:
		id := arena.SpecialistID(a.str("specialist"))
		err := h.sys.Deploy(ctx, actor, id)
		return h.specialistResult(id), err

	case OpBenchmark:
		id := arena.SpecialistID(a.str("specialist"))
		err := h.sys.Benchmark(ctx, actor, id)
		return h.specialistResult(id), err

	case OpRetire:
		id := arena.SpecialistID(a.str("specialist"))
		err := h.sys.Retire(ctx, id)
		return h.specialistResult(id), err

	case OpSubmit:
		priority, err := arena.ParsePriority(a.str("priority"))
		if err != nil {
			return nil, &arena.Error{Code: arena.ErrCodeInvalidTask, Reason: err.Error()}
		}
		id, err := h.sys.Arena.Submit(ctx, arena.TaskRequest{
			Description: a.str("description"),
			Domain:      a.str("domain"),
			Privilege:   actor,
			Priority:    priority,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"task_id": string(id)}, nil

	case OpCancel:
		id := arena.TaskID(a.str("task"))
		if err := h.sys.Arena.Cancel(ctx, id); err != nil {
			return nil, err
		}
		return h.taskResult(id), nil

	case OpProcess:
		out, err := h.sys.Arena.ProcessNext(ctx)
		if out == nil {
			if err != nil {
				return nil, err
			}
			return map[string]any{"idle": true}, nil
		}
		res := map[string]any{
			"task_id": string(out.Task.ID),
			"state":   string(out.Task.State),
			"reused":  out.Reused,
		}
		if out.Specialist != nil {
			res["specialist_id"] = string(out.Specialist.ID)
			res["specialist_state"] = string(out.Specialist.State)
		}
		return res, err
	}

	return nil, fmt.Errorf("unknown op %q", op)
}

// specialistResult summarizes a specialist after an operation. Unknown ids
// yield nil.
func (h *Harness) specialistResult(id arena.SpecialistID) map[string]any {
	sp, err := h.sys.Arena.Status(id)
	if err != nil {
		return nil
	}
	return map[string]any{
		"specialist_id":     string(sp.ID),
		"state":             string(sp.State),
		"compression_ratio": sp.CompressionRatio,
		"retire_pending":    sp.RetirePending,
	}
}

func (h *Harness) taskResult(id arena.TaskID) map[string]any {
	t, err := h.sys.Arena.Task(id)
	if err != nil {
		return nil
	}
	return map[string]any{"task_id": string(t.ID), "state": string(t.State)}
}

// stepArgs reads loosely typed YAML arguments.
type stepArgs map[string]any

func (a stepArgs) str(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (a stepArgs) float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// strs accepts a list or a single string.
func (a stepArgs) strs(key string) []string {
	switch v := a[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// patternID accepts 3 or "P3".
func (a stepArgs) patternID(key string) (pattern.ID, error) {
	if n, ok := a[key].(int); ok {
		return pattern.ID(n), nil
	}
	return dojo.ParsePatternID(a.str(key))
}

// actor defaults to sandboxed.
func (a stepArgs) actor() (privilege.Level, error) {
	raw := a.str("actor")
	if raw == "" {
		return privilege.Sandboxed, nil
	}
	return privilege.ParseLevel(raw)
}
