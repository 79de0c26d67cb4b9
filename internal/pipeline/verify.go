package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mendgate/internal/runner"
	"mendgate/internal/types"
)

// verify runs build, test, and lint concurrently against the execution
// service. Each check carries its own timeout inside the runner; a timeout
// arrives here as a failing CheckResult, never an error. Returns all results
// that ran plus the first failing one in build/test/lint order.
func (p *Pipeline) verify(ctx context.Context) ([]types.CheckResult, *types.CheckResult) {
	type step struct {
		skip    bool
		run     func(context.Context, runner.Runner, time.Duration) types.CheckResult
		timeout time.Duration
	}
	steps := []step{
		{p.skipBuild, runBuild, p.buildTimeout},
		{p.skipTests, runTests, p.testTimeout},
		{p.skipLint, runLint, p.lintTimeout},
	}

	results := make([]*types.CheckResult, len(steps))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, s := range steps {
		if s.skip {
			continue
		}
		i, s := i, s
		g.Go(func() error {
			res := s.run(gctx, p.deps.Runner, s.timeout)
			mu.Lock()
			results[i] = &res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var output []types.CheckResult
	var failed *types.CheckResult
	for _, res := range results {
		if res == nil {
			continue
		}
		output = append(output, *res)
		if !res.Passed && failed == nil {
			failed = res
		}
	}
	return output, failed
}

func runBuild(ctx context.Context, r runner.Runner, timeout time.Duration) types.CheckResult {
	return r.RunBuild(ctx, timeout)
}

func runTests(ctx context.Context, r runner.Runner, timeout time.Duration) types.CheckResult {
	return r.RunTests(ctx, timeout)
}

func runLint(ctx context.Context, r runner.Runner, timeout time.Duration) types.CheckResult {
	return r.RunLint(ctx, timeout)
}
