// Package domain defines the business entities and the service boundary the
// tool catalog executes against. The orchestration core treats the service
// implementations as opaque; the in-memory implementation here backs the CLI
// and tests.
package domain

import "fmt"

// Stage is a strictly ordered phase of a project's lifecycle used to gate
// mutating tools.
type Stage string

const (
	StageArtifacts    Stage = "Artifacts"
	StageBusinessCase Stage = "BusinessCase"
	StageRequirements Stage = "Requirements"
	StageSolution     Stage = "Solution"
	StageEffort       Stage = "Effort"
	StageQuote        Stage = "Quote"
)

// stageOrder defines the strict total order over stages.
var stageOrder = []Stage{
	StageArtifacts,
	StageBusinessCase,
	StageRequirements,
	StageSolution,
	StageEffort,
	StageQuote,
}

// Index returns the position of the stage in the lifecycle order, or -1 for
// an unknown stage.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// AtLeast reports whether the stage has reached the required stage.
// Equality is sufficient.
func (s Stage) AtLeast(required Stage) bool {
	si, ri := s.Index(), required.Index()
	if si < 0 || ri < 0 {
		return false
	}
	return si >= ri
}

// Next returns the stage following s, or s itself when already at the last
// stage.
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 || i >= len(stageOrder)-1 {
		return s
	}
	return stageOrder[i+1]
}

// ParseStage converts a string into a known Stage.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if s.Index() < 0 {
		return "", fmt.Errorf("unknown stage: %q", raw)
	}
	return s, nil
}

// Stages returns the lifecycle order from first to last.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}
