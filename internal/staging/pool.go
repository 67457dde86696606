package staging

import "sync"

// recyclePool is an unbounded multi-producer, multi-consumer FIFO of batches.
//
// A single mutex guards the slice. Offer and Poll are short and faults are off
// the hot path, so coarse locking is enough.
type recyclePool struct {
	mu    sync.Mutex
	items []any
}

func newRecyclePool() *recyclePool {
	return &recyclePool{items: make([]any, 0, 16)}
}

// Offer appends batch. Nil batches are ignored.
func (p *recyclePool) Offer(batch any) {
	if batch == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, batch)
}

// Poll removes and returns the oldest batch, or (nil, false) if empty.
func (p *recyclePool) Poll() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		return nil, false
	}
	batch := p.items[0]
	// Release the slot so the backing array does not pin the batch.
	p.items[0] = nil
	if len(p.items) == 1 {
		p.items = p.items[:0]
	} else {
		p.items = p.items[1:]
	}
	return batch, true
}

// Len returns the number of pooled batches.
func (p *recyclePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Clear drops every pooled batch.
func (p *recyclePool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.items)
	p.items = p.items[:0]
}
