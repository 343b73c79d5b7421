package harness

import "github.com/roach88/dojo/internal/notify"

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
	EventTransition = "transition"
)

// OutcomeOK is the completion outcome of a successful operation. Failed
// operations complete with their error code.
const OutcomeOK = "ok"

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Invocation fields.
	Op   string         `json:"op,omitempty"`
	Args map[string]any `json:"args,omitempty"`

	// Completion fields.
	Outcome string         `json:"outcome,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Message string         `json:"message,omitempty"`

	// Transition fields.
	Specialist string `json:"specialist,omitempty"`
	Domain     string `json:"domain,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every invocation, completion and transition in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists the failed expectations. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace appends an invocation.
func (r *Result) AddInvocationTrace(op string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: EventInvocation,
		Seq:  seq,
		Op:   op,
		Args: args,
	})
}

// AddCompletionTrace appends a completion.
func (r *Result) AddCompletionTrace(outcome string, result map[string]any, message string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventCompletion,
		Seq:     seq,
		Outcome: outcome,
		Result:  result,
		Message: message,
	})
}

// AddTransitionTrace appends a specialist lifecycle transition.
func (r *Result) AddTransitionTrace(ev notify.StateChanged, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventTransition,
		Seq:        seq,
		Specialist: ev.SpecialistID,
		Domain:     ev.Domain,
		From:       ev.From,
		To:         ev.To,
	})
}
