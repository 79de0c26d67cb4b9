package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mendgate/internal/breaker"
	"mendgate/internal/budget"
	"mendgate/internal/cascade"
	"mendgate/internal/judge"
	"mendgate/internal/runner"
	"mendgate/internal/safety"
	"mendgate/internal/types"
)

func TestMain(m *testing.M) {
	// The genai dependency chain starts an opencensus worker at package
	// init; only our own goroutines are under test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeCaller struct {
	name     string
	response string
	err      error
}

func (f *fakeCaller) Name() string { return f.name }
func (f *fakeCaller) Call(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

const approveJSON = `{"approved": true, "confidence": 0.9, "reasoning": "ok", "issues": []}`
const rejectJSON = `{"approved": false, "confidence": 0.8, "reasoning": "no", "issues": ["x"]}`

func approvingJudge(n int) *judge.ConsensusJudge {
	callers := make([]judge.ModelCaller, n)
	for i := range callers {
		callers[i] = &fakeCaller{name: "judge-" + string(rune('a'+i)), response: approveJSON}
	}
	return judge.New(callers)
}

func testDeps(opts ...func(*Deps)) Deps {
	d := Deps{
		Categorizer: safety.New(nil),
		Cascade:     cascade.NewDetector(),
		Breaker:     breaker.New(),
		Budget:      budget.NewGuard(),
		Judge:       approvingJudge(3),
		Runner:      runner.PassingRunner(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func testEvent() *types.ErrorEvent {
	return &types.ErrorEvent{
		Source:      types.SourceLog,
		Description: "ModuleNotFoundError: No module named 'requests'",
		ErrorType:   "ModuleNotFoundError",
		FilePath:    "app/main.py",
		OccurredAt:  time.Now(),
	}
}

func precedentedFix(category types.SafetyCategory) *types.SuggestedFix {
	return &types.SuggestedFix{
		ID:      "fix-1",
		Summary: "add requests to requirements.txt",
		Action: types.FixAction{
			Diff:          "--- a/requirements.txt\n+++ b/requirements.txt\n@@ -1,1 +1,2 @@\n flask\n+requests\n",
			AffectedFiles: []string{"requirements.txt"},
			LinesChanged:  1,
			Category:      category,
		},
		Pattern: &types.PatternRecord{
			Fingerprint:  "a1b2c3d4e5f60718",
			SuccessCount: 20,
			PreSeeded:    true,
		},
	}
}

func TestApprovedEndToEnd(t *testing.T) {
	p := New(testDeps())
	res := p.Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))

	assert.True(t, res.Approved)
	assert.Equal(t, types.PhaseApproval, res.Phase)
	assert.Equal(t, "1/1 judges approved", res.Reason)
	assert.Len(t, res.Votes, 1)
	assert.NotEmpty(t, res.ID)
	assert.NotEmpty(t, res.VerificationOutput, "verification ran and its output is carried")
	assert.InDelta(t, 0.01, res.EstimatedCost, 1e-9)
	assert.False(t, res.CompletedAt.IsZero())
}

func TestFingerprintAppliedWhenMissing(t *testing.T) {
	p := New(testDeps())
	ev := testEvent()
	require.Empty(t, ev.Fingerprint)
	p.Validate(context.Background(), ev, precedentedFix(types.SafetySafe))
	assert.Len(t, ev.Fingerprint, 16)
	assert.Len(t, ev.FingerprintCoarse, 8)
}

func TestKillSwitchRejectsInPreFlight(t *testing.T) {
	p := New(testDeps(), WithKillSwitch(true))
	res := p.Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))

	assert.False(t, res.Approved)
	assert.Equal(t, types.PhasePreFlight, res.Phase)
	assert.Contains(t, res.Reason, "kill switch")
	assert.Empty(t, res.Votes, "judges are never consulted")
}

func TestOpenBreakerRejectsInPreFlight(t *testing.T) {
	deps := testDeps()
	deps.Breaker.RecordRevert()
	deps.Breaker.RecordRevert()
	require.Equal(t, breaker.StateOpen, deps.Breaker.State())

	res := New(deps).Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))
	assert.False(t, res.Approved)
	assert.Equal(t, types.PhasePreFlight, res.Phase)
	assert.Contains(t, res.Reason, "circuit breaker")
}

func TestHardConstraintsReject(t *testing.T) {
	p := New(testDeps())

	t.Run("too many files", func(t *testing.T) {
		fix := precedentedFix(types.SafetySafe)
		fix.Action.AffectedFiles = []string{"a.py", "b.py", "c.py"}
		res := p.Validate(context.Background(), testEvent(), fix)
		assert.False(t, res.Approved)
		assert.Contains(t, res.Reason, "affected files")
	})

	t.Run("too many lines", func(t *testing.T) {
		fix := precedentedFix(types.SafetySafe)
		fix.Action.LinesChanged = 31
		res := p.Validate(context.Background(), testEvent(), fix)
		assert.False(t, res.Approved)
		assert.Contains(t, res.Reason, "changed lines")
	})
}

func TestPrecedentRequired(t *testing.T) {
	p := New(testDeps())

	t.Run("no pattern", func(t *testing.T) {
		fix := precedentedFix(types.SafetySafe)
		fix.Pattern = nil
		res := p.Validate(context.Background(), testEvent(), fix)
		assert.False(t, res.Approved)
		assert.Contains(t, res.Reason, "precedent")
	})

	t.Run("unproven pattern", func(t *testing.T) {
		fix := precedentedFix(types.SafetySafe)
		fix.Pattern = &types.PatternRecord{SuccessCount: 2, VerifiedApplies: 1}
		res := p.Validate(context.Background(), testEvent(), fix)
		assert.False(t, res.Approved)
	})

	t.Run("verified applies qualify", func(t *testing.T) {
		fix := precedentedFix(types.SafetySafe)
		fix.Pattern = &types.PatternRecord{VerifiedApplies: 5}
		res := p.Validate(context.Background(), testEvent(), fix)
		assert.True(t, res.Approved)
	})

	t.Run("human correction qualifies", func(t *testing.T) {
		fix := precedentedFix(types.SafetySafe)
		fix.Pattern = &types.PatternRecord{HumanCorrections: 1}
		res := p.Validate(context.Background(), testEvent(), fix)
		assert.True(t, res.Approved)
	})
}

func TestHotFileRejects(t *testing.T) {
	deps := testDeps()
	for i := 0; i < 3; i++ {
		deps.Cascade.RecordModification("app/main.py")
	}

	res := New(deps).Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))
	assert.False(t, res.Approved)
	assert.Equal(t, types.PhasePreFlight, res.Phase)
	assert.Contains(t, res.Reason, "hot")
}

func TestCascadeAttributionRejects(t *testing.T) {
	deps := testDeps()
	deps.Cascade.RecordFix(types.SuggestedFix{
		ID:     "earlier-fix",
		Action: types.FixAction{AffectedFiles: []string{"app/main.py"}},
	})

	res := New(deps).Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "earlier-fix")
}

func TestBudgetExhaustedRejects(t *testing.T) {
	deps := testDeps()
	deps.Budget = budget.NewGuard(budget.WithDailyCostCeiling(0.001))
	deps.Budget.Record("judge", 1.0)

	res := New(deps).Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))
	assert.False(t, res.Approved)
	assert.Equal(t, types.PhasePreFlight, res.Phase)
	assert.Contains(t, res.Reason, "budget")
}

func TestVerificationFailureCarriesOutput(t *testing.T) {
	deps := testDeps()
	r := runner.PassingRunner()
	r.Tests = types.CheckResult{Name: "test", Passed: false, Message: "2 tests failed", Output: "FAIL app_test.py"}
	deps.Runner = r

	res := New(deps).Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))
	assert.False(t, res.Approved)
	assert.Equal(t, types.PhaseVerification, res.Phase)
	assert.Contains(t, res.Reason, "2 tests failed")
	assert.Len(t, res.VerificationOutput, 3)
}

func TestSkipVerification(t *testing.T) {
	p := New(testDeps(), WithSkipVerification(true))
	res := p.Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))
	assert.True(t, res.Approved)
	assert.Empty(t, res.VerificationOutput)
}

func TestRiskyNeverReachesJudges(t *testing.T) {
	res := New(testDeps()).Validate(context.Background(), testEvent(), precedentedFix(types.SafetyRisky))

	assert.False(t, res.Approved)
	assert.Equal(t, types.PhaseApproval, res.Phase)
	assert.Equal(t, "requires human review", res.Reason)
	assert.Empty(t, res.Votes)
}

func TestSplitPanelRejects(t *testing.T) {
	deps := testDeps()
	deps.Judge = judge.New([]judge.ModelCaller{
		&fakeCaller{name: "m1", response: approveJSON},
		&fakeCaller{name: "m2", response: rejectJSON},
	})

	res := New(deps).Validate(context.Background(), testEvent(), precedentedFix(types.SafetyModerate))
	assert.False(t, res.Approved)
	assert.Equal(t, "1/2 judges approved", res.Reason)
	assert.Len(t, res.Votes, 2)
}

func TestVoteCostRecordedForNonErrorVotesOnly(t *testing.T) {
	deps := testDeps()
	deps.Judge = judge.New([]judge.ModelCaller{
		&fakeCaller{name: "m1", response: approveJSON},
		&fakeCaller{name: "m2", err: context.DeadlineExceeded},
	})

	p := New(deps, WithVoteCost(func(string) float64 { return 0.02 }))
	p.Validate(context.Background(), testEvent(), precedentedFix(types.SafetyModerate))

	assert.InDelta(t, 0.02, deps.Budget.SpentToday(), 1e-9, "only m1's vote is billed")
	assert.Equal(t, 1, deps.Budget.ValidationsToday())
}

func TestPanickingCheckNamesItself(t *testing.T) {
	deps := testDeps()
	deps.Cascade = nil // cascade check dereferences nil and panics

	res := New(deps).Validate(context.Background(), testEvent(), precedentedFix(types.SafetySafe))
	assert.False(t, res.Approved)
	assert.Equal(t, types.PhasePreFlight, res.Phase)
	assert.Contains(t, res.Reason, "cascade check panicked")
}

func TestCategorizerUsedWhenCategoryUnset(t *testing.T) {
	deps := testDeps()
	deps.Categorizer = safety.New([]string{".env"})

	fix := precedentedFix("")
	fix.Action.Diff = "--- a/.env\n+++ b/.env\n@@ -1,1 +1,1 @@\n-A=1\n+A=2\n"
	fix.Action.AffectedFiles = []string{".env"}

	res := New(deps).Validate(context.Background(), testEvent(), fix)
	assert.Equal(t, types.SafetyRisky, res.Category)
	assert.False(t, res.Approved)
	assert.Equal(t, "requires human review", res.Reason)
}
