package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
)

// DefaultProgressWidth is the number of dots a complete progress line has.
const DefaultProgressWidth = 50

// Progress prints a line of dots that grows as the last step of the stage
// completes batches. The line is exactly width dots long once all expected
// batches are done.
type Progress struct {
	w     io.Writer
	total int64
	width int64

	mu   sync.Mutex
	proj *staging.QuantizedProjection
}

// NewProgress creates a progress monitor expecting total batches, drawn as
// width dots. A width <= 0 means DefaultProgressWidth.
func NewProgress(w io.Writer, total int64, width int) *Progress {
	if width <= 0 {
		width = DefaultProgressWidth
	}
	return &Progress{w: w, total: total, width: int64(width)}
}

// Start implements Monitor.
func (p *Progress) Start(exec *staging.Execution) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proj = staging.NewQuantizedProjection(p.total, p.width)
	fmt.Fprintf(p.w, "%s ", exec.Name())
}

// Check implements Monitor.
func (p *Progress) Check(exec *staging.Execution) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(exec)
}

// End implements Monitor. It draws the last dots and closes the line with the
// elapsed time, or with FAILED when the stage faulted.
func (p *Progress) End(exec *staging.Execution, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(exec)

	if exec.AssertHealthy() != nil {
		fmt.Fprintln(p.w, " FAILED")
		return
	}
	fmt.Fprintf(p.w, " %s\n", elapsed.Round(time.Millisecond))
}

func (p *Progress) advance(exec *staging.Execution) {
	if p.proj == nil || p.proj.Done() {
		return
	}
	done := lastStepDone(exec)
	delta := done - p.proj.Consumed()
	if delta <= 0 {
		return
	}
	if remaining := p.total - p.proj.Consumed(); delta > remaining {
		delta = remaining
	}
	if p.proj.Next(delta) && p.proj.Step() > 0 {
		io.WriteString(p.w, strings.Repeat(".", int(p.proj.Step())))
	}
}

// lastStepDone returns the done batches of the last step, 0 for an empty stage.
func lastStepDone(exec *staging.Execution) int64 {
	steps := exec.Steps()
	if len(steps) == 0 {
		return 0
	}
	return stats.Value(steps[len(steps)-1].Stats(), stats.DoneBatches)
}
