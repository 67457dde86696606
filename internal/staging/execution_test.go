package staging_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/testutil"
)

func newExecution(guarantees staging.OrderingGuarantees, steps ...*testutil.RecordingStep) *staging.Execution {
	return staging.NewExecution("Import", "", staging.DefaultConfiguration(), testutil.AsSteps(steps...), guarantees)
}

func TestExecution_StartStartsEveryStepOnce(t *testing.T) {
	a, b := testutil.NewRecordingStep("a"), testutil.NewRecordingStep("b")
	exec := newExecution(staging.OrderSendDownstream|staging.RecycleBatches, a, b)

	require.NoError(t, exec.Start())

	for _, s := range []*testutil.RecordingStep{a, b} {
		assert.Equal(t, []string{testutil.CallStart}, s.Calls())
		assert.Equal(t, staging.OrderSendDownstream|staging.RecycleBatches, s.Guarantees())
	}

	err := exec.Start()
	assert.ErrorIs(t, err, staging.ErrAlreadyStarted)
	assert.Equal(t, 1, a.CallCount(testutil.CallStart))
}

func TestExecution_StillExecuting(t *testing.T) {
	a, b := testutil.NewRecordingStep("a"), testutil.NewRecordingStep("b")
	exec := newExecution(0, a, b)
	require.NoError(t, exec.Start())

	assert.True(t, exec.StillExecuting())
	a.Finish()
	assert.True(t, exec.StillExecuting())
	b.Finish()
	assert.False(t, exec.StillExecuting())
	assert.False(t, exec.StillExecuting(), "level-triggered")
}

func TestExecution_NoStepsIsNotExecuting(t *testing.T) {
	exec := newExecution(0)
	require.NoError(t, exec.Start())
	assert.False(t, exec.StillExecuting())
	assert.Equal(t, 0, exec.Size())
}

func TestExecution_FixedMembership(t *testing.T) {
	a, b := testutil.NewRecordingStep("a"), testutil.NewRecordingStep("b")
	steps := testutil.AsSteps(a, b)
	exec := staging.NewExecution("Import", "", staging.DefaultConfiguration(), steps, 0)

	// Mutating the caller's slice does not affect the execution.
	steps[0] = testutil.NewRecordingStep("intruder")
	assert.Equal(t, 2, exec.Size())
	assert.Same(t, a, exec.Steps()[0])

	// Nor does mutating the returned copy.
	got := exec.Steps()
	got[1] = nil
	assert.Same(t, b, exec.Steps()[1])
}

func TestExecution_PanicFirstWins(t *testing.T) {
	exec := newExecution(0, testutil.NewRecordingStep("a"))
	require.NoError(t, exec.Start())
	require.NoError(t, exec.AssertHealthy())

	first := errors.New("first")
	second := errors.New("second")
	exec.Panic(first)
	exec.Panic(second)

	err := exec.AssertHealthy()
	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.NotErrorIs(t, err, second)
	assert.True(t, staging.IsPanicError(err))

	var pe *staging.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Same(t, first, pe.Cause())
	assert.Equal(t, []error{second}, pe.Suppressed())
	assert.Equal(t, "Import", pe.Stage)

	// The same fault is returned on every check.
	assert.Same(t, pe, exec.AssertHealthy())
}

func TestExecution_PanicEqualCauseIgnored(t *testing.T) {
	exec := newExecution(0, testutil.NewRecordingStep("a"))
	cause := errors.New("boom")

	exec.Panic(cause)
	exec.Panic(cause)

	assert.Empty(t, staging.SuppressedOf(exec.AssertHealthy()))
}

type codeError struct{ code int }

func (e codeError) Error() string { return fmt.Sprintf("code %d", e.code) }

type listError struct{ items []string }

func (e listError) Error() string { return fmt.Sprintf("%v", e.items) }

func TestExecution_PanicComparesCausesByValue(t *testing.T) {
	exec := newExecution(0, testutil.NewRecordingStep("a"))

	exec.Panic(codeError{code: 1})
	exec.Panic(codeError{code: 1})
	exec.Panic(codeError{code: 2})

	assert.Equal(t, []error{codeError{code: 2}}, staging.SuppressedOf(exec.AssertHealthy()))
}

func TestExecution_PanicUncomparableCauses(t *testing.T) {
	exec := newExecution(0, testutil.NewRecordingStep("a"))

	exec.Panic(listError{items: []string{"x"}})
	exec.Panic(listError{items: []string{"x"}})
	exec.Panic(listError{items: []string{"y"}})

	assert.Len(t, staging.SuppressedOf(exec.AssertHealthy()), 1)
}

// wrapError has a comparable static type but may hold an uncomparable error.
type wrapError struct{ inner error }

func (e wrapError) Error() string { return "wrapped: " + e.inner.Error() }

func TestExecution_PanicWrappedUncomparableCauses(t *testing.T) {
	exec := newExecution(0, testutil.NewRecordingStep("a"))

	require.NotPanics(t, func() {
		exec.Panic(wrapError{listError{items: []string{"x"}}})
		exec.Panic(wrapError{listError{items: []string{"x"}}})
		exec.Panic(wrapError{listError{items: []string{"y"}}})
	})
	assert.Len(t, staging.SuppressedOf(exec.AssertHealthy()), 1)

	done := make(chan struct{})
	go func() {
		exec.Panic(errors.New("later"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Panic blocked after an uncomparable cause")
	}
	assert.Len(t, staging.SuppressedOf(exec.AssertHealthy()), 2)
}

func TestExecution_PanicNilCause(t *testing.T) {
	exec := newExecution(0, testutil.NewRecordingStep("a"))
	exec.Panic(nil)
	assert.ErrorIs(t, exec.AssertHealthy(), staging.ErrNilPanic)
}

func TestExecution_PanicBroadcastsOnce(t *testing.T) {
	a, b, c := testutil.NewRecordingStep("a"), testutil.NewRecordingStep("b"), testutil.NewRecordingStep("c")
	exec := newExecution(0, a, b, c)
	require.NoError(t, exec.Start())

	cause := errors.New("boom")
	exec.Panic(cause)
	exec.Panic(errors.New("again"))
	exec.Panic(cause)

	for _, s := range []*testutil.RecordingStep{a, b, c} {
		assert.Equal(t,
			[]string{testutil.CallStart, testutil.CallReceivePanic, testutil.CallEndOfUpstream},
			s.Calls(), "step %s", s.Name())
		assert.Equal(t, []error{cause}, s.Panics())
		assert.True(t, s.IsCompleted())
	}
	assert.False(t, exec.StillExecuting())
}

func TestExecution_ConcurrentPanics(t *testing.T) {
	steps := make([]*testutil.RecordingStep, 4)
	for i := range steps {
		steps[i] = testutil.NewRecordingStep(fmt.Sprintf("s%d", i))
	}
	exec := newExecution(0, steps...)
	require.NoError(t, exec.Start())

	const n = 32
	causes := make([]error, n)
	for i := range causes {
		causes[i] = fmt.Errorf("cause %d", i)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(err error) {
			defer wg.Done()
			<-start
			exec.Panic(err)
		}(causes[i])
	}
	close(start)
	wg.Wait()

	var pe *staging.PanicError
	require.ErrorAs(t, exec.AssertHealthy(), &pe)
	assert.Len(t, pe.Suppressed(), n-1)
	assert.Contains(t, causes, pe.Cause())
	assert.NotContains(t, pe.Suppressed(), pe.Cause())

	for _, s := range steps {
		assert.Equal(t, 1, s.CallCount(testutil.CallReceivePanic))
		assert.Equal(t, 1, s.CallCount(testutil.CallEndOfUpstream))
	}
}

// reentrantStep panics the stage again from inside ReceivePanic.
type reentrantStep struct {
	*testutil.RecordingStep
	ctrl staging.StageControl
}

func (s *reentrantStep) ReceivePanic(cause error) {
	s.RecordingStep.ReceivePanic(cause)
	s.ctrl.Panic(errors.New("secondary from step"))
}

func TestExecution_PanicFromInsideBroadcast(t *testing.T) {
	step := &reentrantStep{RecordingStep: testutil.NewRecordingStep("r")}
	exec := staging.NewExecution("Import", "", staging.DefaultConfiguration(), []staging.Step{step}, 0)
	step.ctrl = exec

	exec.Panic(errors.New("primary"))

	suppressed := staging.SuppressedOf(exec.AssertHealthy())
	require.Len(t, suppressed, 1)
	assert.EqualError(t, suppressed[0], "secondary from step")
}

func TestPanicError_Detail(t *testing.T) {
	exec := newExecution(0)
	exec.Panic(errors.New("disk full"))
	exec.Panic(errors.New("writer closed"))

	var pe *staging.PanicError
	require.ErrorAs(t, exec.AssertHealthy(), &pe)
	assert.Equal(t, "stage Import failed: disk full (+1 suppressed)", pe.Error())
	assert.Equal(t, "stage Import failed: disk full (+1 suppressed)\n\tsuppressed: writer closed", pe.Detail())
}

func TestExecution_RecycleDisabled(t *testing.T) {
	exec := newExecution(staging.OrderSendDownstream)

	exec.Recycle("batch")
	assert.Equal(t, 0, exec.Pooled())

	calls := 0
	got := exec.Reuse(func() any { calls++; return "fresh" })
	assert.Equal(t, "fresh", got)
	assert.Equal(t, 1, calls)
}

func TestExecution_RecycleEnabled(t *testing.T) {
	exec := newExecution(staging.RecycleBatches)

	// Empty pool falls back.
	assert.Equal(t, "fresh", exec.Reuse(func() any { return "fresh" }))

	exec.Recycle("batch-1")
	assert.Equal(t, 1, exec.Pooled())

	got := exec.Reuse(func() any {
		t.Fatal("fallback must not be called while the pool has a batch")
		return nil
	})
	assert.Equal(t, "batch-1", got)
	assert.Equal(t, 0, exec.Pooled())
}

func TestReuseTyped(t *testing.T) {
	exec := newExecution(staging.RecycleBatches)

	b := &[]int{1, 2}
	exec.Recycle(b)
	got := staging.Reuse(exec, func() *[]int { return &[]int{} })
	assert.Same(t, b, got)

	// A pooled value of another type is not returned.
	exec.Recycle("not a slice")
	got = staging.Reuse(exec, func() *[]int { return &[]int{9} })
	assert.Equal(t, []int{9}, *got)
}

func TestExecution_ConcurrentRecycle(t *testing.T) {
	exec := newExecution(staging.RecycleBatches)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := exec.Reuse(func() any { return new(int) })
				exec.Recycle(b)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, exec.Pooled(), 8)
	assert.Positive(t, exec.Pooled())
}

func TestExecution_CloseIdempotent(t *testing.T) {
	exec := newExecution(staging.RecycleBatches)
	exec.Recycle("a")
	exec.Recycle("b")

	assert.NoError(t, exec.Close())
	assert.Equal(t, 0, exec.Pooled())
	assert.NoError(t, exec.Close())
	assert.Equal(t, 0, exec.Pooled())

	disabled := newExecution(0)
	assert.NoError(t, disabled.Close())
	assert.NoError(t, disabled.Close())
}

func TestExecution_Accessors(t *testing.T) {
	cfg := staging.Configuration{BatchSize: 7, MaxProcessors: 2, MovingAverageSize: 3}
	exec := staging.NewExecution("Relationships", "[1/2]", cfg, nil, staging.RecycleBatches)

	assert.Equal(t, "Relationships", exec.StageName())
	assert.Equal(t, "[1/2]", exec.Part())
	assert.Equal(t, "Relationships[1/2]", exec.Name())
	assert.Equal(t, cfg, exec.Config())
	assert.Equal(t, staging.RecycleBatches, exec.Guarantees())
	assert.Equal(t, "Execution[Relationships[1/2]]", exec.String())
}

func TestOrderingGuarantees(t *testing.T) {
	g := staging.OrderSendDownstream | staging.RecycleBatches
	assert.True(t, g.Has(staging.OrderSendDownstream))
	assert.True(t, g.Has(staging.RecycleBatches))
	assert.False(t, staging.OrderSendDownstream.Has(staging.RecycleBatches))

	assert.Equal(t, "order_send_downstream|recycle_batches", g.String())
	assert.Equal(t, "none", staging.OrderingGuarantees(0).String())
	assert.Equal(t, "recycle_batches|0x8", (staging.RecycleBatches | 8).String())
}
