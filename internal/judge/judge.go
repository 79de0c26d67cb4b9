// Package judge queries a panel of external models about a candidate fix and
// tallies an unweighted majority vote.
package judge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mendgate/internal/types"
)

// DefaultCallTimeout bounds one judge call.
const DefaultCallTimeout = 45 * time.Second

// ErrMissingKey is returned by a caller whose API key is not configured.
var ErrMissingKey = errors.New("api key not configured")

// Verdict is the tallied outcome of one consensus round.
type Verdict struct {
	Approved       bool              `json:"approved"`
	Votes          []types.JudgeVote `json:"votes"`
	ConsensusScore float64           `json:"consensus_score"`
	RequiredVotes  int               `json:"required_votes"`
	ReceivedVotes  int               `json:"received_votes"`
}

// ModelCaller sends one prompt to one external model and returns its raw
// text response.
type ModelCaller interface {
	Name() string
	Call(ctx context.Context, prompt string) (string, error)
}

// ConsensusJudge fans a fix review out to the first N configured callers and
// requires a strict majority of the queried panel.
type ConsensusJudge struct {
	callers     []ModelCaller // weight-descending order
	callTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a ConsensusJudge.
type Option func(*ConsensusJudge)

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(j *ConsensusJudge) {
		if d > 0 {
			j.callTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(j *ConsensusJudge) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// New creates a ConsensusJudge over callers already sorted by weight,
// highest first.
func New(callers []ModelCaller, opts ...Option) *ConsensusJudge {
	j := &ConsensusJudge{
		callers:     callers,
		callTimeout: DefaultCallTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Evaluate queries the panel about the fix. The panel size is the category's
// judge count clamped to the number of configured callers; every queried
// model produces exactly one vote, synthetic on failure. Approval needs a
// strict majority of the queried panel, failed calls counting as rejections.
func (j *ConsensusJudge) Evaluate(ctx context.Context, event *types.ErrorEvent, fix *types.SuggestedFix, category types.SafetyCategory) (*Verdict, error) {
	if len(j.callers) == 0 {
		return nil, fmt.Errorf("no judge models configured")
	}

	n := category.JudgeCount()
	if n > len(j.callers) {
		n = len(j.callers)
	}
	panel := j.callers[:n]
	prompt := BuildPrompt(event, fix, category)

	votes := make([]types.JudgeVote, n)
	var wg sync.WaitGroup
	for i, caller := range panel {
		wg.Add(1)
		go func(i int, caller ModelCaller) {
			defer wg.Done()
			votes[i] = j.callOne(ctx, caller, prompt)
		}(i, caller)
	}
	wg.Wait()

	required := n/2 + 1
	approvals := 0
	scorable := 0
	for _, v := range votes {
		if v.Approved {
			approvals++
		}
		if !isTransportError(v) {
			scorable++
		}
	}

	score := 0.0
	if scorable > 0 {
		score = float64(approvals) / float64(scorable)
	}

	verdict := &Verdict{
		Approved:       approvals >= required,
		Votes:          votes,
		ConsensusScore: score,
		RequiredVotes:  required,
		ReceivedVotes:  n,
	}
	j.logger.Info("consensus tallied",
		zap.String("fix_id", fix.ID),
		zap.String("category", string(category)),
		zap.Int("approvals", approvals),
		zap.Int("required", required),
		zap.Int("panel", n),
		zap.Bool("approved", verdict.Approved))
	return verdict, nil
}

func (j *ConsensusJudge) callOne(parent context.Context, caller ModelCaller, prompt string) types.JudgeVote {
	ctx, cancel := context.WithTimeout(parent, j.callTimeout)
	defer cancel()

	raw, err := caller.Call(ctx, prompt)
	if err != nil {
		tag := classifyCallError(err)
		j.logger.Warn("judge call failed",
			zap.String("model", caller.Name()),
			zap.String("tag", tag),
			zap.Error(err))
		return syntheticVote(caller.Name(), tag, err)
	}

	vote, err := parseVoteResponse(caller.Name(), raw)
	if err != nil {
		j.logger.Warn("judge response unparseable",
			zap.String("model", caller.Name()),
			zap.Error(err))
		return syntheticVote(caller.Name(), issueParseError, err)
	}
	return vote
}

const (
	issueTimeout    = "timeout"
	issueMissingKey = "missing_key"
	issueAPIError   = "api_error"
	issueParseError = "parse_error"
)

func classifyCallError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return issueTimeout
	case errors.Is(err, ErrMissingKey):
		return issueMissingKey
	default:
		return issueAPIError
	}
}

func syntheticVote(model, tag string, err error) types.JudgeVote {
	return types.JudgeVote{
		Model:  model,
		Issues: []string{tag},
		Error:  err.Error(),
	}
}

// isTransportError reports whether the vote never reached a model opinion.
// Parse errors did receive a response, so they stay in the consensus score
// denominator.
func isTransportError(v types.JudgeVote) bool {
	if v.Error == "" {
		return false
	}
	for _, issue := range v.Issues {
		switch issue {
		case issueTimeout, issueMissingKey, issueAPIError:
			return true
		}
	}
	return false
}
