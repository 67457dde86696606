// Package supervisor drives a stage from start to completion.
//
// The execution core never blocks and never polls; something outside has to
// watch it. A Supervisor starts the stage, polls StillExecuting and
// AssertHealthy at a fixed interval, reports to a Monitor, and turns context
// cancellation into a stage fault.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/stagerun/internal/staging"
)

const (
	// DefaultInterval is the default polling interval.
	DefaultInterval = 50 * time.Millisecond

	// DefaultDrainTimeout bounds how long a faulted stage is given to let its
	// steps complete.
	DefaultDrainTimeout = 5 * time.Second
)

// Monitor observes a supervised execution.
//
// Start is called once the stage is running, Check after every poll, and End
// exactly once when supervision ends, successful or not.
type Monitor interface {
	Start(exec *staging.Execution)
	Check(exec *staging.Execution)
	End(exec *staging.Execution, elapsed time.Duration)
}

// Supervisor polls a stage until it completes or faults.
type Supervisor struct {
	interval     time.Duration
	drainTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDrainTimeout sets how long to wait for steps after a fault.
// Zero means do not wait.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.drainTimeout = d
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		interval:     DefaultInterval,
		drainTimeout: DefaultDrainTimeout,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Supervise executes stage and blocks until every step completed or the stage
// faulted. A nil monitor is allowed.
//
// Cancelling ctx panics the stage with ctx.Err(). After a fault the supervisor
// waits up to the drain timeout for steps to finish. The returned error is the
// stage fault, or an error from Stage.Execute in which case the execution is nil.
func (s *Supervisor) Supervise(ctx context.Context, stage *staging.Stage, monitor Monitor) (*staging.Execution, error) {
	if monitor == nil {
		monitor = nopMonitor{}
	}

	begin := s.now()
	exec, err := stage.Execute()
	if err != nil {
		return nil, err
	}
	monitor.Start(exec)
	defer func() {
		monitor.End(exec, s.now().Sub(begin))
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := exec.AssertHealthy(); err != nil {
			s.drain(exec)
			return exec, err
		}
		if !exec.StillExecuting() {
			s.logger.Debug("stage completed", "stage", exec.Name(), "elapsed", s.now().Sub(begin))
			return exec, nil
		}

		select {
		case <-ctx.Done():
			s.logger.Warn("stage cancelled", "stage", exec.Name(), "error", ctx.Err())
			exec.Panic(ctx.Err())
		case <-ticker.C:
			monitor.Check(exec)
		}
	}
}

// drain waits for a faulted stage's steps to complete, bounded by the drain
// timeout.
func (s *Supervisor) drain(exec *staging.Execution) {
	if !exec.StillExecuting() {
		return
	}
	deadline := time.NewTimer(s.drainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for exec.StillExecuting() {
		select {
		case <-deadline.C:
			s.logger.Warn("steps still running after fault",
				"stage", exec.Name(),
				"drain_timeout", s.drainTimeout,
			)
			return
		case <-ticker.C:
		}
	}
}

type nopMonitor struct{}

func (nopMonitor) Start(*staging.Execution)              {}
func (nopMonitor) Check(*staging.Execution)              {}
func (nopMonitor) End(*staging.Execution, time.Duration) {}
