package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dojo/internal/notify"
	"github.com/roach88/dojo/internal/testutil"
)

func TestWatchCommandRequiresRedis(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"watch"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "notify.redis_addr is not configured")
}

func TestWatchCommandFollowsNamedSpecialists(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfgPath := filepath.Join(t.TempDir(), "dojo.yaml")
	cfg := "notify:\n  redis_addr: " + mr.Addr() + "\n  instance: test\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	pub, err := notify.NewRedisPublisher(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	defer pub.Close()

	event := func(seq int64, id, from, to string) notify.StateChanged {
		return notify.StateChanged{Seq: seq, SpecialistID: id, Domain: "algebra", From: from, To: to, At: testutil.At(seq)}
	}
	require.NoError(t, pub.Publish(ctx, event(1, "s1", "untrained", "training")))

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--format", "json", "watch", "s1", "--count", "2"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	channel := notify.EventsChannel("test")
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, pub.Publish(ctx, event(2, "s2", "untrained", "training")))
	require.NoError(t, pub.Publish(ctx, event(3, "s1", "training", "benchmarking")))
	require.NoError(t, pub.Publish(ctx, event(4, "s1", "benchmarking", "deployed")))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after --count events")
	}

	dec := json.NewDecoder(buf)
	var state struct {
		Data SpecialistState `json:"data"`
	}
	require.NoError(t, dec.Decode(&state))
	assert.Equal(t, SpecialistState{SpecialistID: "s1", State: "training"}, state.Data)

	var got []notify.StateChanged
	for {
		var resp struct {
			Status string              `json:"status"`
			Data   notify.StateChanged `json:"data"`
		}
		err := dec.Decode(&resp)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Status)
		got = append(got, resp.Data)
	}
	require.Len(t, got, 2, "events for other specialists are skipped")
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, "deployed", got[1].To)
}
