package staging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
	"github.com/roach88/stagerun/internal/testutil"
)

func names(ranked []staging.StepRatio) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = staging.StepName(r.Step)
	}
	return out
}

func ratios(ranked []staging.StepRatio) []float64 {
	out := make([]float64, len(ranked))
	for i, r := range ranked {
		out[i] = r.Ratio
	}
	return out
}

func TestStepsOrderedBy_Ascending(t *testing.T) {
	exec := newExecution(0,
		testutil.NewRecordingStep("read").WithStat(stats.TotalProcessingTime, 40),
		testutil.NewRecordingStep("parse").WithStat(stats.TotalProcessingTime, 10),
		testutil.NewRecordingStep("write").WithStat(stats.TotalProcessingTime, 20),
	)

	ranked := exec.StepsOrderedBy(stats.TotalProcessingTime, true)

	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"parse", "write", "read"}, names(ranked))
	assert.Equal(t, []float64{0.5, 0.5, 1.0}, ratios(ranked))
	assert.Equal(t, int64(10), ranked[0].Value)
}

func TestStepsOrderedBy_DescendingIsReverse(t *testing.T) {
	exec := newExecution(0,
		testutil.NewRecordingStep("a").WithStat(stats.DoneBatches, 3),
		testutil.NewRecordingStep("b").WithStat(stats.DoneBatches, 12),
		testutil.NewRecordingStep("c").WithStat(stats.DoneBatches, 6),
		testutil.NewRecordingStep("d").WithStat(stats.DoneBatches, 1),
	)

	asc := names(exec.StepsOrderedBy(stats.DoneBatches, true))
	desc := exec.StepsOrderedBy(stats.DoneBatches, false)

	reversed := make([]string, len(asc))
	for i := range asc {
		reversed[len(asc)-1-i] = asc[i]
	}
	assert.Equal(t, reversed, names(desc))
	assert.Equal(t, []float64{2.0, 2.0, 3.0, 1.0}, ratios(desc))
}

func TestStepsOrderedBy_StableForTies(t *testing.T) {
	exec := newExecution(0,
		testutil.NewRecordingStep("first").WithStat(stats.DoneBatches, 5),
		testutil.NewRecordingStep("low").WithStat(stats.DoneBatches, 1),
		testutil.NewRecordingStep("second").WithStat(stats.DoneBatches, 5),
		testutil.NewRecordingStep("third").WithStat(stats.DoneBatches, 5),
	)

	assert.Equal(t, []string{"low", "first", "second", "third"},
		names(exec.StepsOrderedBy(stats.DoneBatches, true)))
	assert.Equal(t, []string{"first", "second", "third", "low"},
		names(exec.StepsOrderedBy(stats.DoneBatches, false)))
}

func TestStepsOrderedBy_ZeroDenominator(t *testing.T) {
	exec := newExecution(0,
		testutil.NewRecordingStep("busy").WithStat(stats.UpstreamIdleTime, 8),
		testutil.NewRecordingStep("idle-a").WithStat(stats.UpstreamIdleTime, 0),
		testutil.NewRecordingStep("idle-b").WithStat(stats.UpstreamIdleTime, 0),
	)

	ranked := exec.StepsOrderedBy(stats.UpstreamIdleTime, false)

	assert.Equal(t, []string{"busy", "idle-a", "idle-b"}, names(ranked))
	assert.True(t, ranked[0].Unbounded())
	assert.Equal(t, staging.InfiniteRatio, ranked[0].Ratio)
	assert.False(t, ranked[1].Unbounded())
	assert.Equal(t, 1.0, ranked[1].Ratio, "0/0 is treated as comparable")
	assert.Equal(t, 1.0, ranked[2].Ratio)
}

func TestStepsOrderedBy_MissingStatReadsAsZero(t *testing.T) {
	exec := newExecution(0,
		testutil.NewRecordingStep("has").WithStat(stats.DoneBatches, 4),
		testutil.NewRecordingStep("missing"),
	)

	ranked := exec.StepsOrderedBy(stats.DoneBatches, true)
	assert.Equal(t, []string{"missing", "has"}, names(ranked))
	assert.Equal(t, 0.0, ranked[0].Ratio)
}

func TestStepsOrderedBy_SingleAndEmpty(t *testing.T) {
	single := newExecution(0, testutil.NewRecordingStep("only").WithStat(stats.DoneBatches, 0))
	ranked := single.StepsOrderedBy(stats.DoneBatches, true)
	require.Len(t, ranked, 1)
	assert.Equal(t, 1.0, ranked[0].Ratio)

	assert.Empty(t, newExecution(0).StepsOrderedBy(stats.DoneBatches, true))
}

func TestStepsOrderedBy_DoesNotReorderExecution(t *testing.T) {
	a := testutil.NewRecordingStep("a").WithStat(stats.DoneBatches, 9)
	b := testutil.NewRecordingStep("b").WithStat(stats.DoneBatches, 1)
	exec := newExecution(0, a, b)

	exec.StepsOrderedBy(stats.DoneBatches, true)

	steps := exec.Steps()
	assert.Same(t, a, steps[0])
	assert.Same(t, b, steps[1])
}
