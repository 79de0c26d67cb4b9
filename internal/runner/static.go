package runner

import (
	"context"
	"time"

	"mendgate/internal/types"
)

var _ Runner = (*StaticRunner)(nil)

// StaticRunner returns canned results. Used in tests and for dry runs where
// no execution environment is available.
type StaticRunner struct {
	Build types.CheckResult
	Tests types.CheckResult
	Lint  types.CheckResult

	// Delay, when set, is slept before each result to exercise timeouts.
	Delay time.Duration
}

// PassingRunner returns a StaticRunner whose checks all pass.
func PassingRunner() *StaticRunner {
	return &StaticRunner{
		Build: types.CheckResult{Name: "build", Passed: true, Message: "build passed"},
		Tests: types.CheckResult{Name: "test", Passed: true, Message: "test passed"},
		Lint:  types.CheckResult{Name: "lint", Passed: true, Message: "lint passed"},
	}
}

func (r *StaticRunner) RunBuild(ctx context.Context, timeout time.Duration) types.CheckResult {
	return r.deliver(ctx, r.Build, timeout)
}

func (r *StaticRunner) RunTests(ctx context.Context, timeout time.Duration) types.CheckResult {
	return r.deliver(ctx, r.Tests, timeout)
}

func (r *StaticRunner) RunLint(ctx context.Context, timeout time.Duration) types.CheckResult {
	return r.deliver(ctx, r.Lint, timeout)
}

func (r *StaticRunner) deliver(ctx context.Context, result types.CheckResult, timeout time.Duration) types.CheckResult {
	if r.Delay <= 0 {
		return result
	}
	wait := r.Delay
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var deadline <-chan time.Time
	if timeout > 0 && timeout < wait {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case <-timer.C:
		return result
	case <-deadline:
		return types.CheckResult{Name: result.Name, TimedOut: true, Message: result.Name + " timed out", Duration: timeout}
	case <-ctx.Done():
		return types.CheckResult{Name: result.Name, TimedOut: true, Message: result.Name + " canceled", Duration: wait}
	}
}
