package steps

import "errors"

var (
	// ErrInjected is the cause used when a step fails on purpose (WithFailAt).
	ErrInjected = errors.New("injected failure")

	// ErrOutOfOrder is reported by a sink that sees batches out of sequence
	// on a stage that requires ordering.
	ErrOutOfOrder = errors.New("batch out of order")
)

// Batch is the unit of work passed between synthetic steps.
type Batch struct {
	// Seq is the batch sequence number assigned by the producer, from 0.
	Seq int64
	// Items holds the batch payload.
	Items []int64
}

func newBatch() *Batch {
	return &Batch{}
}

// fill resets the batch and fills it with size consecutive values.
// The backing array is reused when large enough.
func (b *Batch) fill(seq int64, size int) {
	b.Seq = seq
	b.Items = b.Items[:0]
	base := seq * int64(size)
	for i := 0; i < size; i++ {
		b.Items = append(b.Items, base+int64(i))
	}
}
