package privilege

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/dojo/internal/metrics"
)

// Usage counts decisions for one (level, action) pair.
type Usage struct {
	Level   Level  `json:"level"`
	Action  Action `json:"action"`
	Allowed int    `json:"allowed"`
	Blocked int    `json:"blocked"`
}

type usageKey struct {
	level  Level
	action Action
}

// Recorder wraps an Authorizer and keeps an audit of its decisions.
// The wrapped gate's decisions are returned unchanged.
type Recorder struct {
	gate Authorizer

	escalationRepo EscalationRepository
	now            func() time.Time
	nextID         func() string

	mu          sync.Mutex
	usage       map[usageKey]*Usage
	escalations map[string]Escalation
}

// NewRecorder wraps gate. A nil gate selects Gate{}.
func NewRecorder(gate Authorizer, opts ...RecorderOption) *Recorder {
	if gate == nil {
		gate = Gate{}
	}
	r := &Recorder{
		gate:        gate,
		now:         time.Now,
		nextID:      newEscalationID,
		usage:       make(map[usageKey]*Usage),
		escalations: make(map[string]Escalation),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authorize implements Authorizer.
func (r *Recorder) Authorize(level Level, action Action) Decision {
	d := r.gate.Authorize(level, action)

	r.mu.Lock()
	key := usageKey{level: level, action: action}
	u, ok := r.usage[key]
	if !ok {
		u = &Usage{Level: level, Action: action}
		r.usage[key] = u
	}
	if d.Allowed {
		u.Allowed++
	} else {
		u.Blocked++
	}
	r.mu.Unlock()

	metrics.RecordPrivilegeDecision(string(level), string(action), d.Allowed)
	if !d.Allowed {
		slog.Warn("privilege denied", "level", level, "action", action, "reason", d.Reason)
	}
	return d
}

// Report returns the recorded usage ordered by level then action.
func (r *Recorder) Report() []Usage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Usage, 0, len(r.usage))
	for _, u := range r.usage {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b Usage) int {
		if c := cmp.Compare(a.Level, b.Level); c != 0 {
			return c
		}
		return cmp.Compare(a.Action, b.Action)
	})
	return out
}
