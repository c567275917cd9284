package domain

import (
	"fmt"
	"time"
)

// RunState enumerates orchestrator milestones.
type RunState string

const (
	StateIdle       RunState = "IDLE"
	StateIngesting  RunState = "INGESTING"
	StateChunking   RunState = "CHUNKING"
	StateGenerating RunState = "GENERATING"
	StateScoring    RunState = "SCORING"
	StateDeduping   RunState = "DEDUPING"
	StateWriting    RunState = "WRITING"
	StateDone       RunState = "DONE"
	StateFailed     RunState = "FAILED"
)

var nextState = map[RunState]RunState{
	StateIdle:       StateIngesting,
	StateIngesting:  StateChunking,
	StateChunking:   StateGenerating,
	StateGenerating: StateScoring,
	StateScoring:    StateDeduping,
	StateDeduping:   StateWriting,
	StateWriting:    StateDone,
}

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to RunState) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return nextState[from] == to
}

// ValidateTransition returns an error for an illegal step.
func ValidateTransition(from, to RunState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal run transition %s -> %s", from, to)
	}
	return nil
}

// RunRecord is the persisted summary of one run.
type RunRecord struct {
	ID         string
	Name       string
	State      RunState
	OutputPath string
	Error      string
	Stats      Stats
	StartedAt  time.Time
	FinishedAt time.Time
}
