package relevance

import "mendgate/internal/types"

// Reuse thresholds. Cross-project reuse demands both a higher score and a
// track record broad enough that the pattern is unlikely to be an artifact of
// one codebase.
const (
	sameProjectThreshold  = 0.6
	crossProjectThreshold = 0.75

	crossProjectMinProjects  = 3
	crossProjectMinSuccesses = 5
	crossProjectMinWilson    = 0.7
)

// Match is a pattern that cleared the reuse gate, with the score that cleared
// it.
type Match struct {
	Pattern     *types.PatternRecord
	Score       float64
	SameProject bool
}

// Matcher applies the reuse thresholds on top of a Scorer.
type Matcher struct {
	scorer *Scorer
}

// NewMatcher wraps the given scorer.
func NewMatcher(scorer *Scorer) *Matcher {
	return &Matcher{scorer: scorer}
}

// Eligible reports whether the pattern may be offered to the querying project.
// Same-project reuse needs only the base score; cross-project reuse also needs
// the pattern to have proven itself across several projects, and the source
// project must not have opted out of sharing.
func (m *Matcher) Eligible(p *types.PatternRecord, query *types.PatternContext, queryProjectID string, knownProjectIDs []string, sourceSharingEnabled bool) (*Match, bool) {
	score := m.scorer.Score(p, query, queryProjectID, knownProjectIDs)
	sameProject := queryProjectID != "" && contains(knownProjectIDs, queryProjectID)

	if sameProject {
		if score < sameProjectThreshold {
			return nil, false
		}
		return &Match{Pattern: p, Score: score, SameProject: true}, true
	}

	if !sourceSharingEnabled {
		return nil, false
	}
	if score < crossProjectThreshold {
		return nil, false
	}
	if !CrossProjectEligible(p) {
		return nil, false
	}
	return &Match{Pattern: p, Score: score}, true
}

// CrossProjectEligible reports whether the pattern's track record alone
// qualifies it for reuse outside the projects it was learned in.
func CrossProjectEligible(p *types.PatternRecord) bool {
	return p.ProjectCount >= crossProjectMinProjects &&
		p.SuccessCount >= crossProjectMinSuccesses &&
		Wilson(p.SuccessCount, p.Total()) >= crossProjectMinWilson
}
