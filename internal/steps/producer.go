package steps

import (
	"fmt"
	"time"

	"github.com/roach88/stagerun/internal/staging"
)

// Producer generates a fixed number of batches and sends them downstream.
type Producer struct {
	base
	batches   int64
	batchSize int
}

// NewProducer creates a producer of batches batches holding batchSize items each.
// Supported options: WithDelay, WithFailAt, WithTransform.
func NewProducer(name string, ctrl staging.StageControl, batches int64, batchSize int, opts ...Option) *Producer {
	p := &Producer{batches: batches, batchSize: batchSize}
	p.init(name, ctrl, opts)
	return p
}

// Then connects next as the producer's downstream and returns next.
func (p *Producer) Then(next *Processor) *Processor {
	p.downstream = next
	return next
}

// Start implements staging.Step.
func (p *Producer) Start(staging.OrderingGuarantees) {
	go p.run()
}

// EndOfUpstream implements staging.Step. A producer has no upstream; the call
// only arrives when the stage is torn down, so it stops production.
func (p *Producer) EndOfUpstream() {
	p.closeHalt()
}

func (p *Producer) run() {
	defer p.finish()

	for seq := int64(0); seq < p.batches; seq++ {
		select {
		case <-p.halt:
			return
		default:
		}

		if n, fail := p.shouldFail(); fail {
			p.control.Panic(fmt.Errorf("%w: step %s at batch %d", ErrInjected, p.name, n))
			return
		}

		start := time.Now()
		batch := staging.Reuse(p.control, newBatch)
		batch.fill(seq, p.batchSize)
		if err := p.work(batch); err != nil {
			p.control.Recycle(batch)
			p.control.Panic(fmt.Errorf("step %s: %w", p.name, err))
			return
		}
		p.processed(batch, time.Since(start))

		if !p.send(batch) {
			p.control.Recycle(batch)
			return
		}
	}
}
