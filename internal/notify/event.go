// Package notify delivers specialist lifecycle events.
//
// The arena emits exactly one StateChanged per transition, in transition
// order per specialist, to a Sink. Sinks here publish to Redis pub/sub,
// record in memory for tests and tooling, or fan out to several sinks.
package notify

import (
	"context"
	"time"
)

// StateChanged reports one specialist state transition.
type StateChanged struct {
	// Seq orders events across the arena. It increases by one per event.
	Seq          int64     `json:"seq"`
	SpecialistID string    `json:"specialist_id"`
	Domain       string    `json:"domain"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	At           time.Time `json:"at"`
}

// Sink receives lifecycle events.
//
// Publish is called synchronously after the transition is committed. An
// error is logged by the caller; it never undoes the transition.
type Sink interface {
	Publish(ctx context.Context, ev StateChanged) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev StateChanged) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, ev StateChanged) error {
	return f(ctx, ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, StateChanged) error { return nil })
