// Package bench scores trained specialists against a neural baseline.
//
// The score is a compression ratio: the size of a reference neural model
// divided by the footprint of the patterns a specialist was trained on.
// Scoring is a pure function of its inputs.
package bench

import (
	"github.com/roach88/dojo/internal/pattern"
)

const (
	// DefaultBaseline is the reference model size: one million parameters.
	DefaultBaseline int64 = 1_000_000

	// DefaultMinRatio is the lowest ratio a specialist may deploy with.
	DefaultMinRatio = 10.0

	// PatternOverhead is the fixed per-pattern cost added to each payload.
	PatternOverhead int64 = 64
)

// TrainedSet is the pattern set a specialist was trained on.
type TrainedSet struct {
	PatternRefs []pattern.ID
	Footprint   int64
}

// NewTrainedSet measures patterns.
func NewTrainedSet(patterns []pattern.Pattern) TrainedSet {
	set := TrainedSet{PatternRefs: make([]pattern.ID, 0, len(patterns))}
	for _, p := range patterns {
		set.PatternRefs = append(set.PatternRefs, p.ID)
		set.Footprint += int64(len(p.Payload)) + PatternOverhead
	}
	return set
}

// Score returns baseline / footprint. An empty set, or a non-positive
// baseline, scores 0.
func Score(set TrainedSet, baseline int64) float64 {
	if len(set.PatternRefs) == 0 || set.Footprint <= 0 || baseline <= 0 {
		return 0
	}
	return float64(baseline) / float64(set.Footprint)
}

// Benchmarker applies a baseline and a minimum ratio.
type Benchmarker struct {
	Baseline int64
	MinRatio float64
}

// Default returns a Benchmarker with the default baseline and minimum.
func Default() Benchmarker {
	return Benchmarker{Baseline: DefaultBaseline, MinRatio: DefaultMinRatio}
}

// Result is the outcome of a benchmark run.
type Result struct {
	Ratio    float64 `json:"ratio"`
	MinRatio float64 `json:"min_ratio"`
	Passed   bool    `json:"passed"`
}

// Evaluate scores set and compares it with the minimum ratio.
func (b Benchmarker) Evaluate(set TrainedSet) Result {
	ratio := Score(set, b.Baseline)
	return Result{
		Ratio:    ratio,
		MinRatio: b.MinRatio,
		Passed:   ratio >= b.MinRatio && ratio > 0,
	}
}
