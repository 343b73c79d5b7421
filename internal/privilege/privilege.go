// Package privilege implements the two-tier privilege gate.
//
// Sandboxed actors may read the graph, train and benchmark. Everything that
// leaves the sandbox (deployment, file system, network, external
// collaborators) requires Desktop. The gate is pure: Authorize depends only
// on its arguments.
package privilege

import (
	"errors"
	"fmt"
	"slices"
)

// Level is an actor's privilege level.
type Level string

const (
	Sandboxed Level = "sandboxed"
	Desktop   Level = "desktop"
)

// ParseLevel converts s to a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case Sandboxed, Desktop:
		return Level(s), nil
	}
	return "", fmt.Errorf("unknown privilege level %q (want %s or %s)", s, Sandboxed, Desktop)
}

// Action is a capability an actor may exercise.
type Action string

const (
	ActionQueryGraph       Action = "query_graph"
	ActionTrain            Action = "train"
	ActionBenchmark        Action = "benchmark"
	ActionPatternDiscovery Action = "pattern_discovery"
	ActionDeploy           Action = "deploy"
	ActionFileSystemRead   Action = "file_system_read"
	ActionFileSystemWrite  Action = "file_system_write"
	ActionNetworkAccess    Action = "network_access"
	ActionSystemCommands   Action = "system_commands"
	ActionExternalDeploy   Action = "external_deploy"
	ActionDataExport       Action = "data_export"
)

// Actions lists every known action in table order.
var Actions = []Action{
	ActionQueryGraph,
	ActionTrain,
	ActionBenchmark,
	ActionPatternDiscovery,
	ActionDeploy,
	ActionFileSystemRead,
	ActionFileSystemWrite,
	ActionNetworkAccess,
	ActionSystemCommands,
	ActionExternalDeploy,
	ActionDataExport,
}

// sandboxed is the allow list for Sandboxed actors.
var sandboxed = map[Action]bool{
	ActionQueryGraph:       true,
	ActionTrain:            true,
	ActionBenchmark:        true,
	ActionPatternDiscovery: true,
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Authorize decides whether an actor at level may perform action.
func Authorize(level Level, action Action) Decision {
	if !slices.Contains(Actions, action) {
		return Decision{Reason: fmt.Sprintf("unknown action %q", action)}
	}

	switch level {
	case Desktop:
		return Decision{Allowed: true}
	case Sandboxed:
		if sandboxed[action] {
			return Decision{Allowed: true}
		}
		return Decision{Reason: fmt.Sprintf("%s requires %s privilege", action, Desktop)}
	default:
		return Decision{Reason: fmt.Sprintf("unknown privilege level %q", level)}
	}
}

// Capabilities is the capability report for one level.
type Capabilities struct {
	Level   Level    `json:"level"`
	Allowed []Action `json:"allowed"`
	Blocked []Action `json:"blocked"`
}

// CapabilitiesOf splits Actions into those level may and may not perform.
func CapabilitiesOf(level Level) Capabilities {
	c := Capabilities{Level: level, Allowed: []Action{}, Blocked: []Action{}}
	for _, a := range Actions {
		if Authorize(level, a).Allowed {
			c.Allowed = append(c.Allowed, a)
		} else {
			c.Blocked = append(c.Blocked, a)
		}
	}
	return c
}

// Gate is the stateless gate as a value, for callers that take an
// Authorizer.
type Gate struct{}

// Authorize implements Authorizer.
func (Gate) Authorize(level Level, action Action) Decision {
	return Authorize(level, action)
}

// Capabilities reports what level may do.
func (Gate) Capabilities(level Level) Capabilities {
	return CapabilitiesOf(level)
}

// Authorizer decides privilege questions.
type Authorizer interface {
	Authorize(level Level, action Action) Decision
}

// DeniedError reports a refused action at a boundary that does not carry
// its own error type.
type DeniedError struct {
	Level  Level
	Action Action
	Reason string
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("PRIVILEGE_DENIED: %s", e.Reason)
}

// IsDenied checks if an error is a *DeniedError.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

// Require asks a for a decision and converts a denial into *DeniedError.
func Require(a Authorizer, level Level, action Action) error {
	d := a.Authorize(level, action)
	if d.Allowed {
		return nil
	}
	return &DeniedError{Level: level, Action: action, Reason: d.Reason}
}
