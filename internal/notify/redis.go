package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// EventsChannel returns the pub/sub channel for an instance's lifecycle
// events: dojo:{instance}:specialist_events.
func EventsChannel(instance string) string {
	return fmt.Sprintf("dojo:%s:specialist_events", instance)
}

// SpecialistKey returns the hash holding a specialist's last published
// state: dojo:{instance}:specialist:{id}.
func SpecialistKey(instance, specialistID string) string {
	return fmt.Sprintf("dojo:%s:specialist:%s", instance, specialistID)
}

// RedisPublisher publishes lifecycle events to Redis.
//
// Each event updates the specialist's state hash and is then published as
// JSON on the instance channel. Pub/sub delivery is at most once;
// subscribers that need the current state read the hash.
type RedisPublisher struct {
	rdb      *redis.Client
	instance string
}

// NewRedisPublisher connects to Redis for the given instance.
// instance must not be empty.
func NewRedisPublisher(opts *redis.Options, instance string) (*RedisPublisher, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	return &RedisPublisher{
		rdb:      redis.NewClient(opts),
		instance: instance,
	}, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// Ping verifies Redis connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Publish implements Sink.
func (p *RedisPublisher) Publish(ctx context.Context, ev StateChanged) error {
	key := SpecialistKey(p.instance, ev.SpecialistID)
	if err := p.rdb.HSet(ctx, key, map[string]any{
		"domain": ev.Domain,
		"state":  ev.To,
		"seq":    ev.Seq,
	}).Err(); err != nil {
		return fmt.Errorf("failed to write specialist state to Redis: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal state change: %w", err)
	}

	if err := p.rdb.Publish(ctx, EventsChannel(p.instance), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish state change: %w", err)
	}
	return nil
}

// State returns the last published state of a specialist, or "" if none
// was published.
func (p *RedisPublisher) State(ctx context.Context, specialistID string) (string, error) {
	state, err := p.rdb.HGet(ctx, SpecialistKey(p.instance, specialistID), "state").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read specialist state from Redis: %w", err)
	}
	return state, nil
}

// Subscription delivers lifecycle events from Redis.
type Subscription struct {
	events <-chan StateChanged
	errors <-chan error
	cancel context.CancelFunc
}

// Events returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan StateChanged {
	return s.events
}

// Errors returns decode errors. It is closed when the subscription ends.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close ends the subscription.
func (s *Subscription) Close() {
	s.cancel()
}

// Subscribe listens for the instance's lifecycle events. The subscription
// is confirmed before Subscribe returns, so events published afterwards are
// delivered.
func (p *RedisPublisher) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := p.rdb.Subscribe(ctx, EventsChannel(p.instance))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to state changes: %w", err)
	}

	eventsChan := make(chan StateChanged, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev StateChanged
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal state change: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: eventsChan, errors: errorsChan, cancel: cancel}, nil
}
