package staging

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	// ErrAlreadyStarted is returned when an execution is started twice.
	ErrAlreadyStarted = errors.New("stage execution already started")

	// ErrStageExecuted is returned when a step is added to a stage that has
	// already been executed.
	ErrStageExecuted = errors.New("stage already executed")

	// ErrNilPanic replaces a nil cause passed to Panic.
	ErrNilPanic = errors.New("panic with nil cause")
)

// PanicError is the fault recorded by a stage execution.
//
// It wraps the first cause passed to Panic. Causes reported afterwards are kept
// as suppressed causes in arrival order; they never replace the first one.
//
// Thread-safety: Suppressed may be called while other goroutines are still
// panicking the stage.
type PanicError struct {
	// Stage is the name of the execution that recorded the fault.
	Stage string

	cause error

	mu         sync.Mutex
	suppressed []error
}

func newPanicError(stage string, cause error) *PanicError {
	return &PanicError{Stage: stage, cause: cause}
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	msg := fmt.Sprintf("stage %s failed: %v", e.Stage, e.cause)
	if n := len(e.Suppressed()); n > 0 {
		msg += fmt.Sprintf(" (+%d suppressed)", n)
	}
	return msg
}

// Unwrap returns the primary cause.
func (e *PanicError) Unwrap() error { return e.cause }

// Cause returns the primary cause.
func (e *PanicError) Cause() error { return e.cause }

// Suppressed returns a copy of the secondary causes in the order they arrived.
func (e *PanicError) Suppressed() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.suppressed))
	copy(out, e.suppressed)
	return out
}

// Detail renders the primary cause followed by every suppressed cause, one per line.
func (e *PanicError) Detail() string {
	var b strings.Builder
	b.WriteString(e.Error())
	for _, s := range e.Suppressed() {
		b.WriteString("\n\tsuppressed: ")
		b.WriteString(s.Error())
	}
	return b.String()
}

// suppress attaches cause unless it equals the primary cause.
// Returns true if cause was attached.
func (e *PanicError) suppress(cause error) bool {
	if sameCause(e.cause, cause) {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suppressed = append(e.suppressed, cause)
	return true
}

// sameCause compares two errors by value. Errors whose dynamic value is
// comparable use ==, which for pointer errors such as those from errors.New
// means identity. Errors holding slices, maps or funcs, directly or behind an
// interface field, fall back to deep equality.
func sameCause(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// IsPanicError reports whether err is, or wraps, a stage fault.
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// SuppressedOf returns the suppressed causes of the stage fault in err, if any.
func SuppressedOf(err error) []error {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Suppressed()
	}
	return nil
}
