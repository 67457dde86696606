// Package testutil provides deterministic helpers for stage tests.
package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
)

// Call names recorded by RecordingStep.
const (
	CallStart         = "start"
	CallReceivePanic  = "receive_panic"
	CallEndOfUpstream = "end_of_upstream"
)

// RecordingStep is a staging.Step that does no work and records every
// lifecycle call made on it.
//
// It completes when EndOfUpstream is called or when Finish is called, whichever
// comes first. Its stats are fixed values set with SetStat.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingStep struct {
	name  string
	stats *stats.Registry

	completed atomic.Bool

	mu         sync.Mutex
	calls      []string
	guarantees staging.OrderingGuarantees
	panics     []error
}

// NewRecordingStep creates a step named name.
func NewRecordingStep(name string) *RecordingStep {
	return &RecordingStep{name: name, stats: stats.NewRegistry()}
}

// WithStat sets key to value and returns the step, for chaining in tests.
func (s *RecordingStep) WithStat(key stats.Key, value int64) *RecordingStep {
	s.SetStat(key, value)
	return s
}

// SetStat sets key to value.
func (s *RecordingStep) SetStat(key stats.Key, value int64) {
	if c, ok := s.stats.Stat(key).(*stats.Counter); ok {
		c.Set(value)
		return
	}
	s.stats.Counter(key, stats.DetailBasic).Set(value)
}

// Name returns the step name.
func (s *RecordingStep) Name() string { return s.name }

// String implements fmt.Stringer.
func (s *RecordingStep) String() string { return fmt.Sprintf("RecordingStep[%s]", s.name) }

// IsCompleted implements staging.Step.
func (s *RecordingStep) IsCompleted() bool { return s.completed.Load() }

// Start implements staging.Step.
func (s *RecordingStep) Start(guarantees staging.OrderingGuarantees) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guarantees = guarantees
	s.calls = append(s.calls, CallStart)
}

// Stats implements staging.Step.
func (s *RecordingStep) Stats() stats.Provider { return s.stats }

// ReceivePanic implements staging.Step.
func (s *RecordingStep) ReceivePanic(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics = append(s.panics, cause)
	s.calls = append(s.calls, CallReceivePanic)
}

// EndOfUpstream implements staging.Step.
func (s *RecordingStep) EndOfUpstream() {
	s.mu.Lock()
	s.calls = append(s.calls, CallEndOfUpstream)
	s.mu.Unlock()
	s.completed.Store(true)
}

// Finish marks the step completed without any lifecycle call.
func (s *RecordingStep) Finish() { s.completed.Store(true) }

// Calls returns the recorded lifecycle calls in order.
func (s *RecordingStep) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times call was recorded.
func (s *RecordingStep) CallCount(call string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Guarantees returns the guarantees passed to Start.
func (s *RecordingStep) Guarantees() staging.OrderingGuarantees {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guarantees
}

// Panics returns the causes passed to ReceivePanic.
func (s *RecordingStep) Panics() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.panics))
	copy(out, s.panics)
	return out
}

// AsSteps converts recording steps to a staging.Step slice.
func AsSteps(steps ...*RecordingStep) []staging.Step {
	out := make([]staging.Step, len(steps))
	for i, s := range steps {
		out[i] = s
	}
	return out
}
