package arena

import (
	"fmt"
	"time"

	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// TaskID identifies a task.
type TaskID string

// SpecialistID identifies a specialist.
type SpecialistID string

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskAssigned  TaskState = "assigned"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// IsTerminal reports whether the task is finished.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Priority is informational. It never reorders tasks within a domain.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority converts s to a Priority. Empty selects PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// TaskRequest is what a caller submits.
type TaskRequest struct {
	Description string
	Domain      string
	Privilege   privilege.Level
	Priority    Priority
}

// Task is a request to train (or reuse) a specialist for a domain.
type Task struct {
	ID                 TaskID          `json:"id"`
	Description        string          `json:"description"`
	Domain             string          `json:"domain"`
	RequestedPrivilege privilege.Level `json:"requested_privilege"`
	Priority           Priority        `json:"priority"`
	State              TaskState       `json:"state"`
	SpecialistID       SpecialistID    `json:"specialist_id,omitempty"`
	Error              string          `json:"error,omitempty"`
	SubmittedAt        time.Time       `json:"submitted_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// SpecialistState is the lifecycle state of a specialist.
type SpecialistState string

const (
	SpecialistQueued       SpecialistState = "queued"
	SpecialistTraining     SpecialistState = "training"
	SpecialistBenchmarking SpecialistState = "benchmarking"
	SpecialistDeployed     SpecialistState = "deployed"
	SpecialistFailed       SpecialistState = "failed"
	SpecialistRetired      SpecialistState = "retired"
)

// IsTerminal reports whether no further transition is possible.
func (s SpecialistState) IsTerminal() bool {
	return s == SpecialistFailed || s == SpecialistRetired
}

// transitions is the specialist state machine.
var transitions = map[SpecialistState][]SpecialistState{
	SpecialistQueued:       {SpecialistTraining},
	SpecialistTraining:     {SpecialistBenchmarking, SpecialistFailed},
	SpecialistBenchmarking: {SpecialistDeployed, SpecialistRetired},
	SpecialistDeployed:     {SpecialistRetired},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to SpecialistState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Specialist is a task-specific model trained on a set of patterns.
type Specialist struct {
	ID               SpecialistID    `json:"id"`
	Domain           string          `json:"domain"`
	PrivilegeLevel   privilege.Level `json:"privilege_level"`
	State            SpecialistState `json:"state"`
	CompressionRatio float64         `json:"compression_ratio"`

	// PatternRefs are lookup-only references into the pattern store.
	PatternRefs []pattern.ID `json:"pattern_refs"`

	// Footprint is the trained pattern set size the ratio was computed from.
	Footprint int64 `json:"footprint"`

	// Benchmarked is set once a benchmark has passed. A Benchmarking
	// specialist with Benchmarked set is halted awaiting an explicit deploy.
	Benchmarked bool `json:"benchmarked"`

	// RetirePending records a retire request received while a step was in
	// progress. It is applied when the step ends.
	RetirePending bool `json:"retire_pending"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AwaitingDeploy reports whether the specialist passed its benchmark and is
// halted waiting for a separately authorized deploy.
func (s Specialist) AwaitingDeploy() bool {
	return s.State == SpecialistBenchmarking && s.Benchmarked
}

func (s Specialist) clone() Specialist {
	cp := s
	cp.PatternRefs = append([]pattern.ID(nil), s.PatternRefs...)
	return cp
}

// Outcome reports what ProcessNext did with one task.
type Outcome struct {
	Task       Task
	Specialist *Specialist

	// Reused is set when an existing specialist served the task.
	Reused bool
}

// Stats summarizes the arena.
type Stats struct {
	QueueDepth  int                     `json:"queue_depth"`
	Tasks       map[TaskState]int       `json:"tasks"`
	Specialists map[SpecialistState]int `json:"specialists"`
}
