// Package monitor provides supervisor monitors: progress dots, a bottleneck
// log and a run recorder.
package monitor

import (
	"time"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/supervisor"
)

// Monitor observes a supervised execution.
type Monitor = supervisor.Monitor

// Multi fans every call out to its monitors in order.
type Multi []Monitor

// Start implements Monitor.
func (m Multi) Start(exec *staging.Execution) {
	for _, mon := range m {
		mon.Start(exec)
	}
}

// Check implements Monitor.
func (m Multi) Check(exec *staging.Execution) {
	for _, mon := range m {
		mon.Check(exec)
	}
}

// End implements Monitor.
func (m Multi) End(exec *staging.Execution, elapsed time.Duration) {
	for _, mon := range m {
		mon.End(exec, elapsed)
	}
}
