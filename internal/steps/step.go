package steps

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
)

// DefaultQueueSize is the input queue capacity of a processor or sink.
const DefaultQueueSize = 4

type options struct {
	delay     time.Duration
	failAt    int64
	workers   int
	queueSize int
	transform func(*Batch) error
}

// Option configures a synthetic step.
type Option func(*options)

// WithDelay makes the step spend d on every batch.
func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// WithFailAt makes the step panic the stage with ErrInjected when it reaches
// its n-th batch (1-based). Zero disables.
func WithFailAt(n int64) Option {
	return func(o *options) { o.failAt = n }
}

// WithWorkers sets the number of concurrent workers of a processor.
// Ignored by producers and sinks. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithQueueSize sets the input queue capacity. Values below 1 mean 1.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithTransform runs fn on every batch. An error from fn panics the stage.
func WithTransform(fn func(*Batch) error) Option {
	return func(o *options) { o.transform = fn }
}

func buildOptions(opts []Option) options {
	o := options{workers: 1, queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.queueSize < 1 {
		o.queueSize = 1
	}
	return o
}

// base holds what every synthetic step shares: identity, control, stats,
// completion and the halt signal.
type base struct {
	name    string
	control staging.StageControl
	opts    options

	stats          *stats.Registry
	received       *stats.Counter
	done           *stats.Counter
	progress       *stats.Counter
	processingNs   atomic.Int64
	upstreamIdle   atomic.Int64
	downstreamIdle atomic.Int64
	attempts       atomic.Int64

	completed atomic.Bool
	panicked  atomic.Bool

	// halt is closed when the step stops accepting input, on panic or completion.
	halt     chan struct{}
	haltOnce sync.Once

	downstream *Processor
}

// init prepares b in place. It must run before the step is shared.
func (b *base) init(name string, ctrl staging.StageControl, opts []Option) {
	b.name = name
	b.control = ctrl
	b.opts = buildOptions(opts)
	b.stats = stats.NewRegistry()
	b.halt = make(chan struct{})

	b.received = b.stats.Counter(stats.ReceivedBatches, stats.DetailBasic)
	b.done = b.stats.Counter(stats.DoneBatches, stats.DetailBasic)
	b.stats.Register(stats.TotalProcessingTime, stats.NewFunc(stats.DetailImportant, func() int64 {
		return millis(b.processingNs.Load())
	}))
	b.stats.Register(stats.UpstreamIdleTime, stats.NewFunc(stats.DetailDetailed, func() int64 {
		return millis(b.upstreamIdle.Load())
	}))
	b.stats.Register(stats.DownstreamIdleTime, stats.NewFunc(stats.DetailDetailed, func() int64 {
		return millis(b.downstreamIdle.Load())
	}))
	b.stats.Register(stats.AvgProcessingTime, stats.NewFunc(stats.DetailImportant, func() int64 {
		n := b.done.AsLong()
		if n == 0 {
			return 0
		}
		return millis(b.processingNs.Load() / n)
	}))
	b.progress = b.stats.Counter(stats.Progress, stats.DetailBasic)
}

// Name returns the step name.
func (b *base) Name() string { return b.name }

// IsCompleted implements staging.Step.
func (b *base) IsCompleted() bool { return b.completed.Load() }

// Stats implements staging.Step.
func (b *base) Stats() stats.Provider { return b.stats }

// ReceivePanic implements staging.Step.
func (b *base) ReceivePanic(error) {
	b.panicked.Store(true)
	b.closeHalt()
}

// Panicked reports whether the step was told about a stage fault.
func (b *base) Panicked() bool { return b.panicked.Load() }

func (b *base) closeHalt() {
	b.haltOnce.Do(func() { close(b.halt) })
}

// shouldFail counts an attempt and reports whether it is the injected failure.
func (b *base) shouldFail() (int64, bool) {
	n := b.attempts.Add(1)
	return n, b.opts.failAt > 0 && n == b.opts.failAt
}

// work applies the configured delay and transform.
func (b *base) work(batch *Batch) error {
	if b.opts.delay > 0 {
		time.Sleep(b.opts.delay)
	}
	if b.opts.transform != nil {
		return b.opts.transform(batch)
	}
	return nil
}

func (b *base) processed(batch *Batch, elapsed time.Duration) {
	b.processingNs.Add(int64(elapsed))
	b.progress.Add(int64(len(batch.Items)))
	b.done.Add(1)
}

// send hands batch downstream, or recycles it when there is no downstream.
// Returns false if downstream refused the batch; the caller then owns it.
func (b *base) send(batch *Batch) bool {
	if b.downstream == nil {
		b.control.Recycle(batch)
		return true
	}
	start := time.Now()
	ok := b.downstream.receive(batch)
	b.downstreamIdle.Add(int64(time.Since(start)))
	return ok
}

// finish stops input, ends downstream's upstream and marks the step completed.
func (b *base) finish() {
	b.closeHalt()
	if b.downstream != nil {
		b.downstream.EndOfUpstream()
	}
	b.completed.Store(true)
}

func millis(ns int64) int64 {
	return ns / int64(time.Millisecond)
}
