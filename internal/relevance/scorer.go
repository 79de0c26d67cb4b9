// Package relevance computes a [0,1] trust score for a stored fix pattern
// against the current error's context, and applies the caller-side thresholds
// that gate same-project and cross-project reuse.
package relevance

import (
	"math"
	"time"

	"mendgate/internal/types"
)

// Context-dimension matching weights. Ordering is part of the contract:
// language > category > phase/framework > os/runtime/package manager.
const (
	weightLanguage       = 1.0
	weightErrorCategory  = 0.8
	weightWorkflowPhase  = 0.5
	weightFramework      = 0.5
	weightOS             = 0.3
	weightRuntimeVersion = 0.3
	weightPackageManager = 0.3

	// partialCredit is granted when the pattern leaves a dimension
	// unconstrained that the query specifies.
	partialCredit = 0.3
)

// Score-component blend.
const (
	blendConfidence  = 0.30
	blendOverlap     = 0.25
	blendUniversal   = 0.15
	blendRecency     = 0.15
	blendReliability = 0.15 // 1 - failure penalty

	bonusHumanVerified = 0.15
	bonusEvergreen     = 0.10

	sameProjectBoost = 1.2

	recencyHalfLifeDays = 30.0
	failureDecayDays    = 7.0
)

// Scorer computes pattern relevance. Stateless apart from the clock.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a scorer using the wall clock.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// NewScorerAt creates a scorer with a fixed time source, for tests.
func NewScorerAt(now func() time.Time) *Scorer {
	return &Scorer{now: now}
}

// Score rates how much the pattern should be trusted for the query context.
// knownProjectIDs are the projects the pattern has been applied in; a query
// from one of them gets the same-project boost.
func (s *Scorer) Score(p *types.PatternRecord, query *types.PatternContext, queryProjectID string, knownProjectIDs []string) float64 {
	confidence := Wilson(p.SuccessCount, p.Total())
	overlap := s.contextOverlap(p.Context, query)
	universality := math.Min(math.Log10(float64(p.ProjectCount)+1), 1.0)
	recency := s.recency(p.LastSuccessAt)
	penalty := s.failurePenalty(p)

	base := blendConfidence*confidence +
		blendOverlap*overlap +
		blendUniversal*universality +
		blendRecency*recency +
		blendReliability*(1-penalty)

	switch {
	case p.VerifiedByHuman:
		base += bonusHumanVerified
	case p.Evergreen:
		base += bonusEvergreen
	}
	if base > 1.0 {
		base = 1.0
	}

	if queryProjectID != "" && contains(knownProjectIDs, queryProjectID) {
		base *= sameProjectBoost
	}

	base *= riskMultiplier(p.RiskLevel)

	return clamp01(base)
}

// failurePenalty weights the raw failure rate by how recent the last failure
// was: a failure today counts full, one weeks old has mostly decayed.
func (s *Scorer) failurePenalty(p *types.PatternRecord) float64 {
	if p.FailureCount == 0 || p.Total() == 0 {
		return 0
	}
	rate := float64(p.FailureCount) / float64(p.Total())
	days := math.MaxFloat64
	if p.LastFailureAt != nil {
		days = s.now().Sub(*p.LastFailureAt).Hours() / 24
		if days < 0 {
			days = 0
		}
	}
	return rate * (0.5 + 0.5*math.Exp(-days/failureDecayDays))
}

// recency decays with a 30-day half-life; an unknown last success is neutral.
func (s *Scorer) recency(lastSuccess *time.Time) float64 {
	if lastSuccess == nil {
		return 0.5
	}
	days := s.now().Sub(*lastSuccess).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days * math.Ln2 / recencyHalfLifeDays)
}

// contextOverlap is the weighted match over the dimensions present in the
// query, normalized by their total weight. An unconstrained pattern dimension
// earns partial credit; a mismatch earns nothing. A pattern with no context
// at all is neutral.
func (s *Scorer) contextOverlap(pattern, query *types.PatternContext) float64 {
	if query.IsEmpty() {
		return 0.5
	}
	if pattern.IsEmpty() {
		return 0.5
	}

	dims := []struct {
		patternVal string
		queryVal   string
		w          float64
	}{
		{pattern.Language, query.Language, weightLanguage},
		{pattern.ErrorCategory, query.ErrorCategory, weightErrorCategory},
		{pattern.WorkflowPhase, query.WorkflowPhase, weightWorkflowPhase},
		{pattern.Framework, query.Framework, weightFramework},
		{pattern.OS, query.OS, weightOS},
		{pattern.RuntimeVersion, query.RuntimeVersion, weightRuntimeVersion},
		{pattern.PackageManager, query.PackageManager, weightPackageManager},
	}

	var got, total float64
	for _, d := range dims {
		if d.queryVal == "" {
			continue
		}
		total += d.w
		switch {
		case d.patternVal == d.queryVal:
			got += d.w
		case d.patternVal == "":
			got += d.w * partialCredit
		}
	}
	if total == 0 {
		return 0.5
	}
	return got / total
}

func riskMultiplier(level types.RiskLevel) float64 {
	switch level {
	case types.RiskMedium:
		return 0.95
	case types.RiskHigh:
		return 0.85
	case types.RiskCritical:
		return 0.70
	default: // low or unset
		return 1.0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
