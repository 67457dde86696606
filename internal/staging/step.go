package staging

import (
	"fmt"
	"strings"

	"github.com/roach88/stagerun/internal/stats"
)

// OrderingGuarantees is the immutable bitmask of behavioral contracts a stage
// offers its steps. It is handed to every step on Start.
type OrderingGuarantees uint32

const (
	// OrderSendDownstream requires batches to be sent downstream in the order
	// they were received.
	OrderSendDownstream OrderingGuarantees = 1 << iota
	// RecycleBatches enables the stage's batch recycle pool.
	RecycleBatches
)

// Has reports whether every bit in flag is set.
func (g OrderingGuarantees) Has(flag OrderingGuarantees) bool {
	return g&flag == flag
}

// String lists the set flags, e.g. "order_send_downstream|recycle_batches".
func (g OrderingGuarantees) String() string {
	var parts []string
	if g.Has(OrderSendDownstream) {
		parts = append(parts, "order_send_downstream")
	}
	if g.Has(RecycleBatches) {
		parts = append(parts, "recycle_batches")
	}
	if rest := g &^ (OrderSendDownstream | RecycleBatches); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Step is the unit of concurrent work inside a stage.
//
// Every method may be called concurrently from the stage's goroutine and from
// the step's own goroutines.
type Step interface {
	// IsCompleted reports whether the step has permanently stopped producing
	// and consuming. Polled repeatedly; must be cheap and safe at any time.
	IsCompleted() bool

	// Start begins the step's own concurrent execution and returns without
	// blocking. Called exactly once. Faults that occur later on the step's
	// goroutines are reported through StageControl.Panic.
	Start(guarantees OrderingGuarantees)

	// Stats returns the step's metrics. Read-only and side-effect free.
	Stats() stats.Provider

	// ReceivePanic tells the step that another step in the stage failed. Must
	// not block. The step should stop accepting upstream work.
	ReceivePanic(cause error)

	// EndOfUpstream signals that no more input will arrive. The step flushes
	// whatever it holds and then reports IsCompleted() == true.
	EndOfUpstream()
}

// StageControl is the control object shared by all steps of a stage.
type StageControl interface {
	// Panic records cause as the stage fault if none is recorded yet and tells
	// every step to stop. Safe for concurrent use.
	Panic(cause error)

	// AssertHealthy returns the recorded fault, or nil.
	AssertHealthy() error

	// Recycle offers batch for reuse. No-op unless RecycleBatches is set.
	Recycle(batch any)

	// Reuse returns a recycled batch if one is available, otherwise fallback().
	Reuse(fallback func() any) any
}

// Reuse is a typed wrapper around StageControl.Reuse. Pooled values of a
// different type are dropped and fallback is used instead.
func Reuse[T any](ctrl StageControl, fallback func() T) T {
	v := ctrl.Reuse(func() any { return fallback() })
	if t, ok := v.(T); ok {
		return t
	}
	return fallback()
}

// StepName returns a display name for step: its Name() if it has one,
// otherwise its type.
func StepName(step Step) string {
	if n, ok := step.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", step)
}

// Configuration is passed through the stage to its steps unmodified.
type Configuration struct {
	// BatchSize is the number of items per batch.
	BatchSize int
	// MaxProcessors caps the number of workers a single step may run.
	MaxProcessors int
	// MovingAverageSize is the window used by steps that average their stats.
	MovingAverageSize int
}

// DefaultConfiguration returns the configuration used when none is given.
func DefaultConfiguration() Configuration {
	return Configuration{
		BatchSize:         10_000,
		MaxProcessors:     4,
		MovingAverageSize: 100,
	}
}
