package staging

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Execution is the running form of a stage and the StageControl shared by all
// of its steps. There is exactly one Execution per stage run.
//
// Thread-safety model:
//   - Panic: safe from any goroutine, serialized by a single mutex
//   - AssertHealthy: safe from any goroutine, lock-free read
//   - Recycle / Reuse: safe from any goroutine
//   - StillExecuting / StepsOrderedBy: safe from any goroutine, unsynchronized snapshots
//   - Start: called once, by the orchestrator
//
// INVARIANTS:
//   - the step slice never changes once the execution is started
//   - at most one fault is recorded; it is never replaced
//   - steps are told to stop at most once
type Execution struct {
	stageName  string
	part       string
	config     Configuration
	guarantees OrderingGuarantees
	logger     *slog.Logger

	steps   []Step
	started atomic.Bool

	// mu guards fault recording. The fault itself is published through an
	// atomic pointer so AssertHealthy never takes the lock.
	mu    sync.Mutex
	fault atomic.Pointer[PanicError]

	// pool is nil unless guarantees include RecycleBatches.
	pool *recyclePool
}

// ExecutionOption configures an Execution.
type ExecutionOption func(*Execution)

// WithLogger sets the logger used for lifecycle and fault logging.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) ExecutionOption {
	return func(e *Execution) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecution creates an execution over steps.
//
// The steps slice is copied; later changes to the caller's slice do not affect
// the execution. part may be empty. config is passed through unmodified.
func NewExecution(
	stageName string,
	part string,
	config Configuration,
	steps []Step,
	guarantees OrderingGuarantees,
	opts ...ExecutionOption,
) *Execution {
	stepsCopy := make([]Step, len(steps))
	copy(stepsCopy, steps)

	e := &Execution{
		stageName:  stageName,
		part:       part,
		config:     config,
		guarantees: guarantees,
		logger:     slog.Default(),
		steps:      stepsCopy,
	}
	if guarantees.Has(RecycleBatches) {
		e.pool = newRecyclePool()
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// add appends a step before the execution starts. Used by Stage.
func (e *Execution) add(step Step) error {
	if e.started.Load() {
		return ErrStageExecuted
	}
	e.steps = append(e.steps, step)
	return nil
}

// Start starts every step with the stage's ordering guarantees.
// Steps are started in slice order but no start-up ordering is promised.
// Returns ErrAlreadyStarted if called more than once.
func (e *Execution) Start() error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	e.logger.Debug("stage starting",
		"stage", e.Name(),
		"steps", len(e.steps),
		"guarantees", e.guarantees.String(),
	)
	for _, step := range e.steps {
		step.Start(e.guarantees)
	}
	return nil
}

// StillExecuting reports whether at least one step has not completed.
func (e *Execution) StillExecuting() bool {
	for _, step := range e.steps {
		if !step.IsCompleted() {
			return true
		}
	}
	return false
}

// Panic records cause as the stage fault.
//
// The first call wins. Its caller then tells every step to stop, calling
// ReceivePanic followed by EndOfUpstream on each, exactly once in total.
// Later calls attach cause to the recorded fault as a suppressed cause unless
// it equals the recorded cause; equal causes are ignored.
//
// The broadcast runs outside the critical section so a step may call Panic
// again from inside ReceivePanic or EndOfUpstream.
func (e *Execution) Panic(cause error) {
	if cause == nil {
		cause = ErrNilPanic
	}

	fault, first := e.latch(cause)
	if !first {
		if fault != nil {
			e.logger.Debug("stage fault suppressed", "stage", e.Name(), "cause", cause)
		}
		return
	}

	e.logger.Error("stage panic", "stage", e.Name(), "error", cause)
	for _, step := range e.steps {
		step.ReceivePanic(cause)
		step.EndOfUpstream()
	}
}

// latch records cause as the stage fault if none is recorded yet. first is
// true for the call that recorded it. Otherwise fault is the recorded fault
// when cause was attached to it as suppressed, and nil when it was ignored.
func (e *Execution) latch(cause error) (fault *PanicError, first bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing := e.fault.Load(); existing != nil {
		if existing.suppress(cause) {
			return existing, false
		}
		return nil, false
	}
	fault = newPanicError(e.Name(), cause)
	e.fault.Store(fault)
	return fault, true
}

// AssertHealthy returns the recorded fault as a *PanicError, or nil if the
// stage is healthy. The returned error unwraps to the original cause.
func (e *Execution) AssertHealthy() error {
	if fault := e.fault.Load(); fault != nil {
		return fault
	}
	return nil
}

// Recycle offers batch to the recycle pool. No-op unless the stage was built
// with RecycleBatches.
func (e *Execution) Recycle(batch any) {
	if e.pool == nil {
		return
	}
	e.pool.Offer(batch)
}

// Reuse returns a recycled batch if recycling is enabled and one is pooled,
// otherwise the result of fallback. Callers must treat the result as empty
// regardless of where it came from.
func (e *Execution) Reuse(fallback func() any) any {
	if e.pool != nil {
		if batch, ok := e.pool.Poll(); ok {
			return batch
		}
	}
	return fallback()
}

// Pooled returns the number of batches waiting in the recycle pool.
// Always 0 when recycling is disabled.
func (e *Execution) Pooled() int {
	if e.pool == nil {
		return 0
	}
	return e.pool.Len()
}

// Close clears the recycle pool. Idempotent. Always returns nil; the error
// return exists to satisfy io.Closer.
func (e *Execution) Close() error {
	if e.pool != nil {
		e.pool.Clear()
	}
	return nil
}

// Size returns the number of steps.
func (e *Execution) Size() int {
	return len(e.steps)
}

// Steps returns a copy of the step collection.
func (e *Execution) Steps() []Step {
	out := make([]Step, len(e.steps))
	copy(out, e.steps)
	return out
}

// StageName returns the stage name without the part label.
func (e *Execution) StageName() string {
	return e.stageName
}

// Part returns the part label, which may be empty.
func (e *Execution) Part() string {
	return e.part
}

// Name returns the stage name followed by the part label.
func (e *Execution) Name() string {
	return e.stageName + e.part
}

// Config returns the configuration the execution was created with.
func (e *Execution) Config() Configuration {
	return e.config
}

// Guarantees returns the ordering guarantees bitmask.
func (e *Execution) Guarantees() OrderingGuarantees {
	return e.guarantees
}

// String implements fmt.Stringer.
func (e *Execution) String() string {
	return fmt.Sprintf("Execution[%s]", e.Name())
}
