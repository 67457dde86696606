package report

import (
	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
	"github.com/roach88/stagerun/internal/store"
)

// recordedStep replays a stored step's final stats so a stored run can be
// ranked like a live one. It never runs.
type recordedStep struct {
	name      string
	completed bool
	stats     *stats.Registry
}

func newRecordedStep(rec store.StepRecord) *recordedStep {
	s := &recordedStep{name: rec.Name, completed: rec.Completed, stats: stats.NewRegistry()}
	for name, value := range rec.Stats {
		key, ok := stats.Lookup(name)
		if !ok {
			key = stats.NewKey(name, "", "")
		}
		s.stats.Counter(key, stats.DetailBasic).Set(value)
	}
	return s
}

func (s *recordedStep) Name() string                     { return s.name }
func (s *recordedStep) IsCompleted() bool                { return s.completed }
func (s *recordedStep) Start(staging.OrderingGuarantees) {}
func (s *recordedStep) Stats() stats.Provider            { return s.stats }
func (s *recordedStep) ReceivePanic(error)               {}
func (s *recordedStep) EndOfUpstream()                   {}
