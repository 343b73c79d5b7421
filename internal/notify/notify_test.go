package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(seq int64, id, from, to string) StateChanged {
	return StateChanged{
		Seq:          seq,
		SpecialistID: id,
		Domain:       "arithmetic",
		From:         from,
		To:           to,
		At:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()

	require.NoError(t, r.Publish(ctx, event(1, "s1", "queued", "training")))
	require.NoError(t, r.Publish(ctx, event(2, "s2", "queued", "training")))
	require.NoError(t, r.Publish(ctx, event(3, "s1", "training", "benchmarking")))

	assert.Len(t, r.Events(), 3)
	s1 := r.For("s1")
	require.Len(t, s1, 2)
	assert.Equal(t, "benchmarking", s1[1].To)
}

func TestMulti_AttemptsEverySink(t *testing.T) {
	ctx := context.Background()
	first := NewRecorder()
	last := NewRecorder()
	failing := SinkFunc(func(context.Context, StateChanged) error { return errors.New("unreachable") })

	err := Multi{first, failing, nil, last}.Publish(ctx, event(1, "s1", "queued", "training"))
	assert.ErrorContains(t, err, "unreachable")
	assert.Len(t, first.Events(), 1)
	assert.Len(t, last.Events(), 1)

	assert.NoError(t, Multi{first}.Publish(ctx, event(2, "s1", "training", "failed")))
	assert.NoError(t, Discard.Publish(ctx, event(3, "s1", "a", "b")))
}

func TestRedisPublisher_NameValidation(t *testing.T) {
	_, err := NewRedisPublisher(&redis.Options{Addr: "localhost:0"}, "")
	assert.Error(t, err)
}

func TestRedisPublisher_PublishAndSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub, err := NewRedisPublisher(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Ping(ctx))

	sub, err := pub.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	want := []StateChanged{
		event(1, "s1", "queued", "training"),
		event(2, "s1", "training", "benchmarking"),
		event(3, "s1", "benchmarking", "deployed"),
	}
	for _, ev := range want {
		require.NoError(t, pub.Publish(ctx, ev))
	}

	for i, expected := range want {
		select {
		case got := <-sub.Events():
			assert.Equal(t, expected, got, "event %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	state, err := pub.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "deployed", state)

	assert.Equal(t, "deployed", mr.HGet(SpecialistKey("test-instance", "s1"), "state"))

	missing, err := pub.State(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRedisPublisher_ReportsConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub, err := NewRedisPublisher(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer pub.Close()

	mr.Close()
	assert.Error(t, pub.Publish(ctx, event(1, "s1", "queued", "training")))
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "dojo:prod:specialist_events", EventsChannel("prod"))
	assert.Equal(t, "dojo:prod:specialist:abc", SpecialistKey("prod", "abc"))
}
