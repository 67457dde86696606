package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns predetermined run ids for deterministic tests.
//
// Ids are returned in order. Once they are exhausted the generator falls back
// to "test-run-<n>" so a test that creates more runs than expected still gets
// unique ids.
//
// Thread-safety: FixedIDGenerator is safe for concurrent use via internal mutex.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator creates a generator that returns ids in order.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// Generate returns the next id.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return fmt.Sprintf("test-run-%d", g.idx)
}
