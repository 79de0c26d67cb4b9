// Package runner executes a project's build, test, and lint commands and
// reports structured pass/fail results. Timeouts become failing results, not
// errors.
package runner

import (
	"context"
	"time"

	"mendgate/internal/types"
)

// Runner is the execution service the verification phase consumes.
type Runner interface {
	RunBuild(ctx context.Context, timeout time.Duration) types.CheckResult
	RunTests(ctx context.Context, timeout time.Duration) types.CheckResult
	RunLint(ctx context.Context, timeout time.Duration) types.CheckResult
}
