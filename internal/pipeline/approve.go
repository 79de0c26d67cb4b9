package pipeline

import (
	"context"
	"fmt"
	"time"

	"mendgate/internal/metrics"
	"mendgate/internal/types"
)

// approve runs the consensus phase. RISKY fixes never reach the judges.
func (p *Pipeline) approve(ctx context.Context, result *types.ValidationResult, start time.Time, event *types.ErrorEvent, fix *types.SuggestedFix, category types.SafetyCategory) *types.ValidationResult {
	if category == types.SafetyRisky {
		return p.finish(result, start, types.PhaseApproval, false, "requires human review")
	}

	verdict, err := p.deps.Judge.Evaluate(ctx, event, fix, category)
	if err != nil {
		return p.finish(result, start, types.PhaseApproval, false,
			fmt.Sprintf("consensus unavailable: %v", err))
	}

	result.Votes = verdict.Votes
	approvals := 0
	for _, vote := range verdict.Votes {
		metrics.ObserveJudgeVote(vote.Model, vote.Approved, vote.Error != "")
		if vote.Approved {
			approvals++
		}
		if vote.Error == "" {
			cost := p.voteCost(vote.Model)
			p.deps.Budget.Record("judge", cost)
			metrics.AddJudgeSpend(cost)
		}
	}

	reason := fmt.Sprintf("%d/%d judges approved", approvals, verdict.ReceivedVotes)
	return p.finish(result, start, types.PhaseApproval, verdict.Approved, reason)
}
