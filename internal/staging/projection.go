package staging

import "math/bits"

// QuantizedProjection projects a stream of progress ticks onto a fixed number
// of buckets, e.g. the dots of a progress line.
//
// Bucket boundaries are round(max*b/projectedMax) for b = 1..projectedMax,
// computed from the cumulative tick count with exact integer arithmetic so the
// last boundary lands on max whatever the intermediate rounding.
//
// Not safe for concurrent use.
type QuantizedProjection struct {
	max          int64
	projectedMax int64

	consumed       int64
	prevProjection int64
	step           int64
}

// NewQuantizedProjection creates a projection of max ticks onto projectedMax buckets.
// Negative arguments are treated as zero.
func NewQuantizedProjection(max, projectedMax int64) *QuantizedProjection {
	return &QuantizedProjection{
		max:          nonNegative(max),
		projectedMax: nonNegative(projectedMax),
	}
}

// Next advances the projection by delta ticks.
//
// Returns false, consuming nothing, if the cumulative tick count would exceed
// max. Otherwise records how many buckets this call crossed (see Step) and
// returns true. A single large delta may cross several buckets. Negative deltas
// are treated as zero.
func (q *QuantizedProjection) Next(delta int64) bool {
	delta = nonNegative(delta)
	if delta > q.max-q.consumed {
		return false
	}
	q.consumed += delta

	projected := q.project(q.consumed)
	q.step = projected - q.prevProjection
	q.prevProjection = projected
	return true
}

// Step returns the number of buckets crossed by the last accepted Next.
func (q *QuantizedProjection) Step() int64 {
	return q.step
}

// Current returns the highest bucket reached so far. It never decreases and
// equals projectedMax once max ticks have been consumed.
func (q *QuantizedProjection) Current() int64 {
	return q.prevProjection
}

// Consumed returns the cumulative ticks accepted so far.
func (q *QuantizedProjection) Consumed() int64 {
	return q.consumed
}

// Done reports whether every tick has been consumed.
func (q *QuantizedProjection) Done() bool {
	return q.consumed >= q.max
}

// project returns round-half-up(consumed*projectedMax/max).
func (q *QuantizedProjection) project(consumed int64) int64 {
	if q.max == 0 {
		return q.projectedMax
	}
	// consumed <= max, so the quotient is at most projectedMax and hi < max.
	hi, lo := bits.Mul64(uint64(consumed), uint64(q.projectedMax))
	quo, rem := bits.Div64(hi, lo, uint64(q.max))
	if rem >= uint64(q.max)-rem {
		quo++
	}
	return int64(quo)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
