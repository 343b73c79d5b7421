package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines one reproducible run against a fresh dojo.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Fields overrides the configured fields. Empty keeps the defaults.
	Fields []string `yaml:"fields,omitempty"`

	// Validators is a CUE file of field predicates, relative to the
	// scenario file.
	Validators string `yaml:"validators,omitempty"`

	// MinCompressionRatio overrides the benchmark threshold.
	MinCompressionRatio float64 `yaml:"min_compression_ratio,omitempty"`

	// QueueBound overrides the arena queue bound.
	QueueBound int `yaml:"queue_bound,omitempty"`

	// Setup steps run before the flow and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence of operations.
	Flow []FlowStep `yaml:"flow"`

	// Assertions are checked after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one boundary operation.
type Step struct {
	Op   string         `yaml:"op"`
	Args map[string]any `yaml:"args,omitempty"`
}

// FlowStep is an operation with an optional expectation.
type FlowStep struct {
	Op     string         `yaml:"op"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect *ExpectClause  `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected completion.
type ExpectClause struct {
	// Outcome is "ok" or the expected error code (e.g. DUPLICATE).
	Outcome string `yaml:"outcome"`

	// Result is a subset match on the completion's result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the persisted state.
type Assertion struct {
	Type string `yaml:"type"`

	// Op is used by trace_contains and trace_count.
	Op string `yaml:"op,omitempty"`

	// Args is a subset match used by trace_contains.
	Args map[string]any `yaml:"args,omitempty"`

	// Count is used by trace_count.
	Count int `yaml:"count,omitempty"`

	// Ops is the expected order used by trace_order.
	Ops []string `yaml:"ops,omitempty"`

	// Specialist and States are used by transitions.
	Specialist string   `yaml:"specialist,omitempty"`
	States     []string `yaml:"states,omitempty"`

	// Table, Where and Expect are used by final_state.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertTransitions   = "transitions"
	AssertFinalState    = "final_state"
)

// Operations a step may name.
const (
	OpIngest    = "ingest"
	OpLink      = "link"
	OpQuery     = "query"
	OpTrain     = "train"
	OpDeploy    = "deploy"
	OpBenchmark = "benchmark"
	OpRetire    = "retire"
	OpSubmit    = "submit"
	OpCancel    = "cancel"
	OpProcess   = "process"
)

// Ops lists every supported operation.
var Ops = []string{
	OpIngest, OpLink, OpQuery, OpTrain, OpDeploy,
	OpBenchmark, OpRetire, OpSubmit, OpCancel, OpProcess,
}

// stateTables are the tables final_state may query.
var stateTables = []string{"patterns", "edges", "specialists", "tasks"}

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// rejected. A relative Validators path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Validators != "" && !filepath.IsAbs(scenario.Validators) {
		scenario.Validators = filepath.Join(filepath.Dir(path), scenario.Validators)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must contain at least one step")
	}
	if s.MinCompressionRatio < 0 {
		return fmt.Errorf("min_compression_ratio must be positive")
	}
	if s.QueueBound < 0 {
		return fmt.Errorf("queue_bound must be positive")
	}

	for i, step := range s.Setup {
		if err := validateOp(step.Op); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateOp(step.Op); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Outcome == "" {
			return fmt.Errorf("flow[%d]: expect.outcome is required", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateOp(op string) error {
	if op == "" {
		return fmt.Errorf("op is required")
	}
	if !slices.Contains(Ops, op) {
		return fmt.Errorf("unknown op %q", op)
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTransitions:
		if a.Specialist == "" {
			return fmt.Errorf("assertions[%d]: specialist is required for transitions", index)
		}
	case AssertFinalState:
		if !slices.Contains(stateTables, a.Table) {
			return fmt.Errorf("assertions[%d]: table must be one of %v for final_state", index, stateTables)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
