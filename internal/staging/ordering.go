package staging

import (
	"cmp"
	"math"
	"slices"

	"github.com/roach88/stagerun/internal/stats"
)

// InfiniteRatio is the ratio assigned when a step's stat is non-zero and its
// successor's is zero: the step is infinitely slower than its neighbour.
var InfiniteRatio = math.Inf(1)

// StepRatio pairs a step with how its stat compares to the next step in a
// ranking.
type StepRatio struct {
	Step Step
	// Value is the stat value read for this step.
	Value int64
	// Ratio is Value divided by the next step's value. Close to 1.0 means the
	// two are comparable; 0.5 means this step's value is half the next one's.
	// The last step of a ranking always has ratio 1.0.
	Ratio float64
}

// Unbounded reports whether the ratio is InfiniteRatio.
func (r StepRatio) Unbounded() bool {
	return math.IsInf(r.Ratio, 1)
}

// StepsOrderedBy ranks the steps by the value of key.
//
// Each step's value is read once into a snapshot and the snapshot is stable
// sorted, ascending or descending, so steps with equal values keep their
// original relative order. Concurrent stat updates are tolerated; the result
// is advisory.
//
// Every element except the last gets the ratio of its value to the next
// element's value. The last gets 1.0. When the next value is zero, the ratio is
// 1.0 if the current value is also zero, otherwise InfiniteRatio.
func (e *Execution) StepsOrderedBy(key stats.Key, ascending bool) []StepRatio {
	ranked := make([]StepRatio, len(e.steps))
	for i, step := range e.steps {
		ranked[i] = StepRatio{Step: step, Value: stats.Value(step.Stats(), key)}
	}

	slices.SortStableFunc(ranked, func(a, b StepRatio) int {
		if ascending {
			return cmp.Compare(a.Value, b.Value)
		}
		return cmp.Compare(b.Value, a.Value)
	})

	for i := range ranked {
		if i == len(ranked)-1 {
			ranked[i].Ratio = 1.0
			continue
		}
		ranked[i].Ratio = ratio(ranked[i].Value, ranked[i+1].Value)
	}
	return ranked
}

func ratio(current, next int64) float64 {
	if next == 0 {
		if current == 0 {
			return 1.0
		}
		return InfiniteRatio
	}
	return float64(current) / float64(next)
}
