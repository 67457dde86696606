package staging

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Stage assembles the steps of one pipeline phase.
//
// Steps usually need the stage's control object when they are constructed,
// before the step collection is complete. Stage hands out the control first,
// collects steps with Add and freezes membership in Execute.
type Stage struct {
	exec *Execution

	mu       sync.Mutex
	executed bool
	closed   bool
}

// NewStage creates a stage with no steps.
func NewStage(name, part string, config Configuration, guarantees OrderingGuarantees, opts ...ExecutionOption) *Stage {
	return &Stage{
		exec: NewExecution(name, part, config, nil, guarantees, opts...),
	}
}

// Control returns the control object steps report to.
func (s *Stage) Control() StageControl {
	return s.exec
}

// Config returns the stage configuration.
func (s *Stage) Config() Configuration {
	return s.exec.Config()
}

// Guarantees returns the stage ordering guarantees.
func (s *Stage) Guarantees() OrderingGuarantees {
	return s.exec.Guarantees()
}

// Name returns the stage name followed by its part label.
func (s *Stage) Name() string {
	return s.exec.Name()
}

// Add appends step. Returns ErrStageExecuted once the stage has been executed.
func (s *Stage) Add(step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executed {
		return ErrStageExecuted
	}
	return s.exec.add(step)
}

// Execute freezes the step collection and starts every step.
func (s *Stage) Execute() (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executed {
		return nil, ErrStageExecuted
	}
	s.executed = true
	if err := s.exec.Start(); err != nil {
		return nil, err
	}
	return s.exec, nil
}

// Close closes the execution and then every step implementing io.Closer.
// Idempotent. Step close errors are joined.
func (s *Stage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.exec.Close()
	var errs []error
	for _, step := range s.exec.steps {
		c, ok := step.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close step %s: %w", StepName(step), err))
		}
	}
	return errors.Join(errs...)
}

// String implements fmt.Stringer.
func (s *Stage) String() string {
	return fmt.Sprintf("Stage[%s]", s.Name())
}
