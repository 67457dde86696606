package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
)

// Bottleneck logs the steps of a finished stage ranked by a stat, highest
// first unless ascending is set. Each line carries the ratio to the next step
// so a dominant step stands out.
type Bottleneck struct {
	logger    *slog.Logger
	key       stats.Key
	ascending bool
}

// NewBottleneck creates a bottleneck monitor. A nil logger means slog.Default().
func NewBottleneck(logger *slog.Logger, key stats.Key, ascending bool) *Bottleneck {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bottleneck{logger: logger, key: key, ascending: ascending}
}

// Start implements Monitor.
func (b *Bottleneck) Start(*staging.Execution) {}

// Check implements Monitor.
func (b *Bottleneck) Check(exec *staging.Execution) {
	if !b.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if top := exec.StepsOrderedBy(b.key, b.ascending); len(top) > 0 {
		b.logger.Debug("current bottleneck",
			"stage", exec.Name(),
			"step", staging.StepName(top[0].Step),
			b.key.Name(), top[0].Value,
		)
	}
}

// End implements Monitor.
func (b *Bottleneck) End(exec *staging.Execution, elapsed time.Duration) {
	for i, r := range exec.StepsOrderedBy(b.key, b.ascending) {
		attrs := []any{
			"stage", exec.Name(),
			"rank", i + 1,
			"step", staging.StepName(r.Step),
			b.key.Name(), r.Value,
		}
		if r.Unbounded() {
			attrs = append(attrs, "ratio", "inf")
		} else {
			attrs = append(attrs, "ratio", r.Ratio)
		}
		b.logger.Info("step ranking", attrs...)
	}
	b.logger.Info("stage finished",
		"stage", exec.Name(),
		"elapsed", elapsed,
		"pooled_batches", exec.Pooled(),
	)
}
