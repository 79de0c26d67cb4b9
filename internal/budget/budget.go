// Package budget enforces the daily spend and validation-count ceilings for
// automated validations. Counters reset on UTC day rollover.
package budget

import (
	"fmt"
	"sync"
	"time"

	"mendgate/internal/types"
)

const (
	// DefaultDailyCostCeiling is the USD spend allowed per UTC day.
	DefaultDailyCostCeiling = 10.0
	// DefaultDailyValidationCeiling caps how many consensus validations run
	// per UTC day.
	DefaultDailyValidationCeiling = 100
	// DefaultPerValidationCap bounds a single validation's estimated cost.
	DefaultPerValidationCap = 0.50
)

// Guard is process-wide state; construct once and inject.
type Guard struct {
	mu sync.Mutex

	dailyCostCeiling    float64
	dailyValidationCeil int
	perValidationCap    float64
	judgeCostEstimates  []float64
	now                 func() time.Time

	day              string // UTC date of the counters below
	spentToday       float64
	validationsToday int
}

// Option configures a Guard.
type Option func(*Guard)

// WithDailyCostCeiling overrides the USD ceiling.
func WithDailyCostCeiling(usd float64) Option {
	return func(g *Guard) {
		if usd > 0 {
			g.dailyCostCeiling = usd
		}
	}
}

// WithDailyValidationCeiling overrides the validation-count ceiling.
func WithDailyValidationCeiling(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.dailyValidationCeil = n
		}
	}
}

// WithPerValidationCap overrides the single-validation estimate cap.
func WithPerValidationCap(usd float64) Option {
	return func(g *Guard) {
		if usd > 0 {
			g.perValidationCap = usd
		}
	}
}

// WithJudgeCostEstimates supplies per-judge cost estimates whose mean feeds
// the pre-flight estimate.
func WithJudgeCostEstimates(usd []float64) Option {
	return func(g *Guard) {
		if len(usd) > 0 {
			g.judgeCostEstimates = usd
		}
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard with default ceilings.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		dailyCostCeiling:    DefaultDailyCostCeiling,
		dailyValidationCeil: DefaultDailyValidationCeiling,
		perValidationCap:    DefaultPerValidationCap,
		judgeCostEstimates:  []float64{0.01},
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.day = g.today()
	return g
}

// EstimateCost returns the expected spend for one validation of the given
// category: judge count times the mean per-judge estimate.
func (g *Guard) EstimateCost(category types.SafetyCategory) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.estimateLocked(category)
}

// CanValidate reports whether a validation of the given category is
// affordable today, with a reason on rejection. Checks run in fixed order:
// daily cost ceiling, daily validation count, per-validation cap, and the
// running total including this estimate.
func (g *Guard) CanValidate(category types.SafetyCategory) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()

	if g.spentToday >= g.dailyCostCeiling {
		return false, fmt.Sprintf("daily cost ceiling reached ($%.2f of $%.2f)", g.spentToday, g.dailyCostCeiling)
	}
	if g.validationsToday >= g.dailyValidationCeil {
		return false, fmt.Sprintf("daily validation ceiling reached (%d of %d)", g.validationsToday, g.dailyValidationCeil)
	}
	estimate := g.estimateLocked(category)
	if estimate > g.perValidationCap {
		return false, fmt.Sprintf("estimated cost $%.2f exceeds per-validation cap $%.2f", estimate, g.perValidationCap)
	}
	if g.spentToday+estimate > g.dailyCostCeiling {
		return false, fmt.Sprintf("estimated cost $%.2f would exceed daily ceiling $%.2f", estimate, g.dailyCostCeiling)
	}
	return true, "within budget"
}

// Record adds actual spend for an operation. Judge operations also count
// against the daily validation ceiling.
func (g *Guard) Record(operation string, cost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()

	g.spentToday += cost
	if operation == "judge" {
		g.validationsToday++
	}
}

// SpentToday returns today's running total.
func (g *Guard) SpentToday() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	return g.spentToday
}

// ValidationsToday returns today's validation count.
func (g *Guard) ValidationsToday() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	return g.validationsToday
}

// Reset clears the counters, for test isolation.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.day = g.today()
	g.spentToday = 0
	g.validationsToday = 0
}

func (g *Guard) estimateLocked(category types.SafetyCategory) float64 {
	var sum float64
	for _, c := range g.judgeCostEstimates {
		sum += c
	}
	mean := sum / float64(len(g.judgeCostEstimates))
	return mean * float64(category.JudgeCount())
}

func (g *Guard) today() string {
	return g.now().UTC().Format("2006-01-02")
}

func (g *Guard) rolloverLocked() {
	if today := g.today(); today != g.day {
		g.day = today
		g.spentToday = 0
		g.validationsToday = 0
	}
}
