package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
	"github.com/roach88/stagerun/internal/store"
)

// RunWriter persists finished runs. Implemented by *store.Store.
type RunWriter interface {
	WriteRun(ctx context.Context, run store.RunRecord) error
}

// Recorder writes one store.RunRecord per supervised run when the run ends.
//
// Monitors cannot fail, so a write error is logged and kept for Err.
type Recorder struct {
	ctx    context.Context
	w      RunWriter
	ids    IDGenerator
	key    stats.Key
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	begin time.Time
	last  store.RunRecord
	err   error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithOrderKey records which stat the run was ranked by.
func WithOrderKey(key stats.Key) RecorderOption {
	return func(r *Recorder) { r.key = key }
}

// WithRecorderLogger sets the logger. Default: slog.Default().
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock sets the wall clock used for the run start time.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder writing to w with ids from ids.
// ctx bounds the store write.
func NewRecorder(ctx context.Context, w RunWriter, ids IDGenerator, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		ctx:    ctx,
		w:      w,
		ids:    ids,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start implements Monitor.
func (r *Recorder) Start(*staging.Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begin = r.now()
}

// Check implements Monitor.
func (r *Recorder) Check(*staging.Execution) {}

// End implements Monitor.
func (r *Recorder) End(exec *staging.Execution, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	begin := r.begin
	if begin.IsZero() {
		begin = r.now().Add(-elapsed)
	}
	run := NewRunRecord(r.ids.Generate(), exec, begin, elapsed)
	if r.key != (stats.Key{}) {
		run.OrderKey = r.key.Name()
	}

	r.last = run
	r.err = r.w.WriteRun(r.ctx, run)
	if r.err != nil {
		r.logger.Error("record run", "run", run.ID, "stage", run.Stage, "error", r.err)
		return
	}
	r.logger.Debug("run recorded", "run", run.ID, "stage", run.Stage, "status", run.Status)
}

// Last returns the most recently recorded run.
func (r *Recorder) Last() store.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Err returns the error of the most recent write, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// NewRunRecord snapshots exec into a run record with the given id.
func NewRunRecord(id string, exec *staging.Execution, startedAt time.Time, elapsed time.Duration) store.RunRecord {
	run := store.RunRecord{
		ID:         id,
		Stage:      exec.StageName(),
		Part:       exec.Part(),
		Guarantees: exec.Guarantees().String(),
		Status:     store.StatusOK,
		StartedAt:  startedAt,
		Elapsed:    elapsed,
	}

	if err := exec.AssertHealthy(); err != nil {
		run.Status = store.StatusFailed
		run.Fault = err.Error()
		var pe *staging.PanicError
		if errors.As(err, &pe) {
			run.Fault = pe.Cause().Error()
		}
		for _, s := range staging.SuppressedOf(err) {
			run.Suppressed = append(run.Suppressed, s.Error())
		}
	}

	for i, step := range exec.Steps() {
		run.Steps = append(run.Steps, store.StepRecord{
			Position:  i,
			Name:      staging.StepName(step),
			Completed: step.IsCompleted(),
			Stats:     stats.Snapshot(step.Stats()),
		})
	}
	return run
}
