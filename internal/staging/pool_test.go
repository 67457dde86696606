package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecyclePool_FIFO(t *testing.T) {
	p := newRecyclePool()
	p.Offer(1)
	p.Offer(2)
	p.Offer(nil)
	p.Offer(3)

	assert.Equal(t, 3, p.Len())
	for _, want := range []int{1, 2, 3} {
		got, ok := p.Poll()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := p.Poll()
	assert.False(t, ok)
}

func TestRecyclePool_Clear(t *testing.T) {
	p := newRecyclePool()
	p.Offer("a")
	p.Offer("b")
	p.Clear()
	assert.Equal(t, 0, p.Len())
	p.Clear()
	assert.Equal(t, 0, p.Len())

	p.Offer("c")
	got, ok := p.Poll()
	assert.True(t, ok)
	assert.Equal(t, "c", got)
}
