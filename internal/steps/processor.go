package steps

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/stagerun/internal/staging"
)

// Processor receives batches from upstream, works on them and sends them
// downstream. A processor without downstream is a sink.
type Processor struct {
	base
	sink bool

	in           chan *Batch
	upstreamDone chan struct{}
	upstreamOnce sync.Once

	ordered bool
	nextSeq atomic.Int64
}

// NewProcessor creates a processor.
// Supported options: WithDelay, WithFailAt, WithWorkers, WithQueueSize, WithTransform.
func NewProcessor(name string, ctrl staging.StageControl, opts ...Option) *Processor {
	p := &Processor{}
	p.init(name, ctrl, opts)
	p.in = make(chan *Batch, p.opts.queueSize)
	p.upstreamDone = make(chan struct{})
	return p
}

// NewSink creates a terminal processor that recycles every batch it consumes.
// A sink always runs a single worker.
func NewSink(name string, ctrl staging.StageControl, opts ...Option) *Processor {
	p := NewProcessor(name, ctrl, opts...)
	p.sink = true
	p.opts.workers = 1
	return p
}

// Then connects next as downstream and returns next.
func (p *Processor) Then(next *Processor) *Processor {
	p.downstream = next
	return next
}

// Workers returns the number of workers the processor runs, or will run.
func (p *Processor) Workers() int {
	return p.opts.workers
}

// Start implements staging.Step. With OrderSendDownstream the processor runs a
// single worker so batches leave in arrival order, and a sink checks sequence
// numbers.
func (p *Processor) Start(guarantees staging.OrderingGuarantees) {
	if guarantees.Has(staging.OrderSendDownstream) {
		p.opts.workers = 1
		p.ordered = p.sink
	}

	var wg sync.WaitGroup
	wg.Add(p.opts.workers)
	for i := 0; i < p.opts.workers; i++ {
		go func() {
			defer wg.Done()
			p.worker()
		}()
	}
	go func() {
		wg.Wait()
		p.finish()
	}()
}

// EndOfUpstream implements staging.Step. Queued batches are still drained.
func (p *Processor) EndOfUpstream() {
	p.upstreamOnce.Do(func() { close(p.upstreamDone) })
}

// receive queues batch, blocking while the queue is full. Returns false if the
// processor has stopped accepting input.
func (p *Processor) receive(batch *Batch) bool {
	select {
	case p.in <- batch:
		p.received.Add(1)
		return true
	case <-p.halt:
		return false
	}
}

func (p *Processor) worker() {
	for {
		waitStart := time.Now()
		select {
		case batch := <-p.in:
			p.upstreamIdle.Add(int64(time.Since(waitStart)))
			p.handle(batch)
		case <-p.upstreamDone:
			p.drain()
			return
		}
	}
}

func (p *Processor) drain() {
	for {
		select {
		case batch := <-p.in:
			p.handle(batch)
		default:
			return
		}
	}
}

func (p *Processor) handle(batch *Batch) {
	if p.panicked.Load() {
		p.control.Recycle(batch)
		return
	}

	if n, fail := p.shouldFail(); fail {
		p.control.Recycle(batch)
		p.control.Panic(fmt.Errorf("%w: step %s at batch %d", ErrInjected, p.name, n))
		return
	}

	if p.ordered {
		want := p.nextSeq.Add(1) - 1
		if batch.Seq != want {
			p.control.Recycle(batch)
			p.control.Panic(fmt.Errorf("%w: step %s got batch %d, want %d", ErrOutOfOrder, p.name, batch.Seq, want))
			return
		}
	}

	start := time.Now()
	if err := p.work(batch); err != nil {
		p.control.Recycle(batch)
		p.control.Panic(fmt.Errorf("step %s: %w", p.name, err))
		return
	}
	p.processed(batch, time.Since(start))

	if p.sink {
		p.control.Recycle(batch)
		return
	}
	if !p.send(batch) {
		p.control.Recycle(batch)
	}
}
