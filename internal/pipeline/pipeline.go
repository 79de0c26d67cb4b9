// Package pipeline runs the three-phase validation protocol that decides
// whether an automated fix may be applied: PRE_FLIGHT gate checks, then
// VERIFICATION against the execution service, then consensus APPROVAL.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mendgate/internal/breaker"
	"mendgate/internal/budget"
	"mendgate/internal/cascade"
	"mendgate/internal/fingerprint"
	"mendgate/internal/judge"
	"mendgate/internal/metrics"
	"mendgate/internal/runner"
	"mendgate/internal/safety"
	"mendgate/internal/types"
)

// Hard constraints on automated changes.
const (
	DefaultMaxAffectedFiles = 2
	DefaultMaxLinesChanged  = 30

	// minVerifiedApplies and minHumanCorrections define established
	// precedent alongside pre-seeded patterns.
	minVerifiedApplies  = 5
	minHumanCorrections = 1
	defaultBuildTimeout = 2 * time.Minute
	defaultTestTimeout  = 5 * time.Minute
	defaultLintTimeout  = time.Minute
	defaultVoteCostUSD  = 0.01
)

// Deps are the collaborating components, constructed once and injected.
type Deps struct {
	Categorizer *safety.Categorizer
	Cascade     *cascade.Detector
	Breaker     *breaker.Breaker
	Budget      *budget.Guard
	Judge       *judge.ConsensusJudge
	Runner      runner.Runner
	Logger      *zap.Logger
}

// Pipeline is the validation state machine. Phases only move forward; any
// failure terminates with approved=false.
type Pipeline struct {
	deps Deps

	killSwitch       bool
	skipVerification bool
	skipBuild        bool
	skipTests        bool
	skipLint         bool

	maxAffectedFiles int
	maxLinesChanged  int

	buildTimeout time.Duration
	testTimeout  time.Duration
	lintTimeout  time.Duration

	voteCost func(model string) float64
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithKillSwitch engages the global kill switch.
func WithKillSwitch(on bool) Option {
	return func(p *Pipeline) { p.killSwitch = on }
}

// WithSkipVerification bypasses the verification phase entirely. Meant for
// test environments with no execution service.
func WithSkipVerification(skip bool) Option {
	return func(p *Pipeline) { p.skipVerification = skip }
}

// WithVerificationChecks selects which verification checks run.
func WithVerificationChecks(build, tests, lint bool) Option {
	return func(p *Pipeline) {
		p.skipBuild = !build
		p.skipTests = !tests
		p.skipLint = !lint
	}
}

// WithHardConstraints overrides the file and line ceilings.
func WithHardConstraints(maxFiles, maxLines int) Option {
	return func(p *Pipeline) {
		if maxFiles > 0 {
			p.maxAffectedFiles = maxFiles
		}
		if maxLines > 0 {
			p.maxLinesChanged = maxLines
		}
	}
}

// WithVerificationTimeouts overrides the per-check timeouts.
func WithVerificationTimeouts(build, tests, lint time.Duration) Option {
	return func(p *Pipeline) {
		if build > 0 {
			p.buildTimeout = build
		}
		if tests > 0 {
			p.testTimeout = tests
		}
		if lint > 0 {
			p.lintTimeout = lint
		}
	}
}

// WithVoteCost supplies per-model vote costs for budget accounting.
func WithVoteCost(cost func(model string) float64) Option {
	return func(p *Pipeline) {
		if cost != nil {
			p.voteCost = cost
		}
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline over the injected components.
func New(deps Deps, opts ...Option) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	p := &Pipeline{
		deps:             deps,
		maxAffectedFiles: DefaultMaxAffectedFiles,
		maxLinesChanged:  DefaultMaxLinesChanged,
		buildTimeout:     defaultBuildTimeout,
		testTimeout:      defaultTestTimeout,
		lintTimeout:      defaultLintTimeout,
		voteCost:         func(string) float64 { return defaultVoteCostUSD },
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate runs the full protocol and returns exactly one terminal result.
func (p *Pipeline) Validate(ctx context.Context, event *types.ErrorEvent, fix *types.SuggestedFix) *types.ValidationResult {
	start := p.now()
	if event.Fingerprint == "" {
		fingerprint.Apply(event)
	}

	category := fix.Action.Category
	if category == "" {
		category = p.deps.Categorizer.Categorize(fix.Action.Diff, fix.Action.AffectedFiles).Category
	}

	result := &types.ValidationResult{
		ID:            uuid.NewString(),
		Category:      category,
		EstimatedCost: p.deps.Budget.EstimateCost(category),
	}

	p.deps.Logger.Info("validation started",
		zap.String("id", result.ID),
		zap.String("fingerprint", event.Fingerprint),
		zap.String("fix_id", fix.ID),
		zap.String("category", string(category)))

	metrics.SetBreakerState(breakerStateGauge(p.deps.Breaker.State()))

	if failed := p.preFlight(ctx, event, fix, category); failed != nil {
		return p.finish(result, start, types.PhasePreFlight, false,
			fmt.Sprintf("pre-flight check failed: %s", failed.Message))
	}

	if !p.skipVerification && p.deps.Runner != nil {
		output, failed := p.verify(ctx)
		result.VerificationOutput = output
		if failed != nil {
			return p.finish(result, start, types.PhaseVerification, false, failed.Message)
		}
	}

	return p.approve(ctx, result, start, event, fix, category)
}

// breakerStateGauge maps breaker states onto the published gauge values.
func breakerStateGauge(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// finish stamps the terminal fields and records metrics. Every exit path
// funnels through here so exactly one result is produced.
func (p *Pipeline) finish(result *types.ValidationResult, start time.Time, phase types.Phase, approved bool, reason string) *types.ValidationResult {
	result.Phase = phase
	result.Approved = approved
	result.Reason = reason
	result.CompletedAt = p.now()

	metrics.ObserveValidation(result.CompletedAt.Sub(start), approved, string(phase))
	p.deps.Logger.Info("validation finished",
		zap.String("id", result.ID),
		zap.String("phase", string(phase)),
		zap.Bool("approved", approved),
		zap.String("reason", reason))
	return result
}
