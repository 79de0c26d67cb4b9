package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"mendgate/internal/types"
)

// preFlight runs the five gate checks concurrently and returns the first
// failing check in declaration order, or nil when all pass. A panicking
// check converts to a failure naming that check.
func (p *Pipeline) preFlight(ctx context.Context, event *types.ErrorEvent, fix *types.SuggestedFix, category types.SafetyCategory) *types.CheckResult {
	checks := []struct {
		name string
		run  func(context.Context) (bool, string)
	}{
		{"automation_enabled", func(context.Context) (bool, string) {
			if p.killSwitch {
				return false, "kill switch engaged"
			}
			if allowed, reason := p.deps.Breaker.ShouldAllowFix(); !allowed {
				return false, fmt.Sprintf("circuit breaker: %s", reason)
			}
			return true, "automation enabled"
		}},
		{"hard_constraints", func(context.Context) (bool, string) {
			if n := len(fix.Action.AffectedFiles); n > p.maxAffectedFiles {
				return false, fmt.Sprintf("%d affected files exceeds limit of %d", n, p.maxAffectedFiles)
			}
			if n := fix.Action.LinesChanged; n > p.maxLinesChanged {
				return false, fmt.Sprintf("%d changed lines exceeds limit of %d", n, p.maxLinesChanged)
			}
			return true, "within hard constraints"
		}},
		{"precedent", func(context.Context) (bool, string) {
			pat := fix.Pattern
			if pat == nil {
				return false, "no precedent pattern for this fix"
			}
			switch {
			case pat.PreSeeded:
				return true, "pre-seeded pattern"
			case pat.VerifiedApplies >= minVerifiedApplies:
				return true, fmt.Sprintf("%d verified automated applies", pat.VerifiedApplies)
			case pat.HumanCorrections >= minHumanCorrections:
				return true, "human-corrected precedent"
			default:
				return false, "pattern lacks established precedent"
			}
		}},
		{"cascade", func(context.Context) (bool, string) {
			if event.FilePath == "" {
				return true, "no file to check"
			}
			if p.deps.Cascade.IsFileHot(event.FilePath) {
				return false, fmt.Sprintf("file %s is hot", event.FilePath)
			}
			if culprit := p.deps.Cascade.CheckCascade(event.FilePath, event.OccurredAt); culprit != nil {
				return false, fmt.Sprintf("error attributed to recent automated fix %s", culprit.ID)
			}
			return true, "no cascade detected"
		}},
		{"budget", func(context.Context) (bool, string) {
			return p.deps.Budget.CanValidate(category)
		}},
	}

	results := make([]types.CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, name string, run func(context.Context) (bool, string)) {
			defer wg.Done()
			results[i] = p.runGuarded(ctx, name, run)
		}(i, check.name, check.run)
	}
	wg.Wait()

	for i := range results {
		if !results[i].Passed {
			p.deps.Logger.Warn("pre-flight check failed",
				zap.String("check", results[i].Name),
				zap.String("message", results[i].Message))
			return &results[i]
		}
	}
	return nil
}

// runGuarded executes one check, converting a panic into a failing result
// that names the check.
func (p *Pipeline) runGuarded(ctx context.Context, name string, run func(context.Context) (bool, string)) (result types.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = types.CheckResult{
				Name:    name,
				Passed:  false,
				Message: fmt.Sprintf("%s check panicked: %v", name, r),
			}
		}
	}()

	passed, message := run(ctx)
	return types.CheckResult{
		Name:    name,
		Passed:  passed,
		Message: fmt.Sprintf("%s: %s", name, message),
	}
}
