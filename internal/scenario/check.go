package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnexpectedOutcome is wrapped by Check when a run's outcome does not match
// the scenario's expectation.
var ErrUnexpectedOutcome = errors.New("unexpected outcome")

// Check compares the health error of a finished run with the scenario's
// expectation. It returns nil when they agree.
func Check(sc *Scenario, runErr error) error {
	expect := sc.Expect
	if expect == nil || (!expect.Fault && expect.FaultContains == "") {
		if runErr != nil {
			return fmt.Errorf("%w: expected success, got fault: %v", ErrUnexpectedOutcome, runErr)
		}
		return nil
	}

	if runErr == nil {
		return fmt.Errorf("%w: expected a fault, run succeeded", ErrUnexpectedOutcome)
	}
	if expect.FaultContains != "" && !strings.Contains(runErr.Error(), expect.FaultContains) {
		return fmt.Errorf("%w: fault %q does not contain %q", ErrUnexpectedOutcome, runErr.Error(), expect.FaultContains)
	}
	return nil
}
