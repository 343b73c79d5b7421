package notify

import (
	"context"
	"errors"
	"sync"
)

// Recorder keeps every published event in memory.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []StateChanged
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish implements Sink.
func (r *Recorder) Publish(_ context.Context, ev StateChanged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []StateChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StateChanged, len(r.events))
	copy(out, r.events)
	return out
}

// For returns the recorded events of one specialist in publish order.
func (r *Recorder) For(specialistID string) []StateChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StateChanged
	for _, ev := range r.events {
		if ev.SpecialistID == specialistID {
			out = append(out, ev)
		}
	}
	return out
}

// Multi publishes to each sink in order. Every sink is attempted; the
// errors are joined.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(ctx context.Context, ev StateChanged) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
