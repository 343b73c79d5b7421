package privilege

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize_Table(t *testing.T) {
	tests := []struct {
		level   Level
		action  Action
		allowed bool
	}{
		{Sandboxed, ActionQueryGraph, true},
		{Sandboxed, ActionTrain, true},
		{Sandboxed, ActionBenchmark, true},
		{Sandboxed, ActionPatternDiscovery, true},
		{Sandboxed, ActionDeploy, false},
		{Sandboxed, ActionFileSystemRead, false},
		{Sandboxed, ActionFileSystemWrite, false},
		{Sandboxed, ActionNetworkAccess, false},
		{Sandboxed, ActionSystemCommands, false},
		{Sandboxed, ActionExternalDeploy, false},
		{Sandboxed, ActionDataExport, false},
		{Desktop, ActionDeploy, true},
		{Desktop, ActionExternalDeploy, true},
		{Desktop, ActionFileSystemWrite, true},
		{Desktop, ActionTrain, true},
		{Level("root"), ActionTrain, false},
		{Desktop, Action("launch_missiles"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level)+"/"+string(tt.action), func(t *testing.T) {
			d := Authorize(tt.level, tt.action)
			assert.Equal(t, tt.allowed, d.Allowed)
			if tt.allowed {
				assert.Empty(t, d.Reason)
			} else {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestAuthorize_Pure(t *testing.T) {
	for range 3 {
		assert.Equal(t, Authorize(Sandboxed, ActionDeploy), Authorize(Sandboxed, ActionDeploy))
	}
}

func TestCapabilitiesOf(t *testing.T) {
	sb := CapabilitiesOf(Sandboxed)
	assert.Equal(t, []Action{ActionQueryGraph, ActionTrain, ActionBenchmark, ActionPatternDiscovery}, sb.Allowed)
	assert.Len(t, sb.Blocked, len(Actions)-4)
	assert.Contains(t, sb.Blocked, ActionDeploy)

	dt := Gate{}.Capabilities(Desktop)
	assert.Equal(t, Actions, dt.Allowed)
	assert.Empty(t, dt.Blocked)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("desktop")
	require.NoError(t, err)
	assert.Equal(t, Desktop, l)

	_, err = ParseLevel("admin")
	assert.Error(t, err)
}

func TestRecorder_CountsDecisions(t *testing.T) {
	r := NewRecorder(nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Authorize(Sandboxed, ActionDeploy)
			r.Authorize(Sandboxed, ActionTrain)
			r.Authorize(Desktop, ActionDeploy)
		}()
	}
	wg.Wait()

	assert.Equal(t, []Usage{
		{Level: Desktop, Action: ActionDeploy, Allowed: 10},
		{Level: Sandboxed, Action: ActionDeploy, Blocked: 10},
		{Level: Sandboxed, Action: ActionTrain, Allowed: 10},
	}, r.Report())
}

type denyAll struct{}

func (denyAll) Authorize(Level, Action) Decision { return Decision{Reason: "closed"} }

func TestRecorder_PassesThroughDecision(t *testing.T) {
	r := NewRecorder(denyAll{})
	d := r.Authorize(Desktop, ActionTrain)
	assert.False(t, d.Allowed)
	assert.Equal(t, "closed", d.Reason)
}

func TestRequire(t *testing.T) {
	require.NoError(t, Require(Gate{}, Sandboxed, ActionQueryGraph))

	err := Require(Gate{}, Sandboxed, ActionDeploy)
	require.Error(t, err)
	assert.True(t, IsDenied(err))
	assert.Contains(t, err.Error(), "deploy requires desktop privilege")

	var de *DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, Sandboxed, de.Level)
	assert.Equal(t, ActionDeploy, de.Action)
}
