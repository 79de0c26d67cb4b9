package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mendgate/internal/breaker"
	"mendgate/internal/budget"
	"mendgate/internal/cascade"
	"mendgate/internal/config"
	"mendgate/internal/fingerprint"
	"mendgate/internal/judge"
	"mendgate/internal/metrics"
	"mendgate/internal/pattern"
	"mendgate/internal/pipeline"
	"mendgate/internal/relevance"
	"mendgate/internal/runner"
	"mendgate/internal/safety"
	"mendgate/internal/types"
)

var (
	eventPath        string
	fixPath          string
	skipVerification bool
)

// errRejected propagates a rejection as the command error so deferred
// cleanup (store close, logger sync) runs before the non-zero exit.
var errRejected = errors.New("fix rejected")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run a candidate fix through the full validation pipeline",
	Long: `Reads an error event and a suggested fix from JSON files, runs the
three-phase validation protocol, and prints the terminal result as JSON.
Exits non-zero when the fix is rejected.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&eventPath, "event", "", "path to the error event JSON (required)")
	validateCmd.Flags().StringVar(&fixPath, "fix", "", "path to the suggested fix JSON (required)")
	validateCmd.Flags().BoolVar(&skipVerification, "skip-verification", false, "skip the build/test/lint phase")
	_ = validateCmd.MarkFlagRequired("event")
	_ = validateCmd.MarkFlagRequired("fix")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	event, fix, err := loadInputs()
	if err != nil {
		return err
	}
	fingerprint.Apply(event)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	store, err := pattern.NewSQLiteStore(cfg.Storage.PatternDB)
	if err != nil {
		return fmt.Errorf("failed to open pattern store: %w", err)
	}
	defer store.Close()

	if fix.Pattern == nil {
		fix.Pattern, err = findPrecedent(ctx, store, event)
		if err != nil {
			return fmt.Errorf("pattern lookup failed: %w", err)
		}
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	result := p.Validate(ctx, event, fix)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))

	if !result.Approved {
		return fmt.Errorf("%w: %s", errRejected, result.Reason)
	}
	return nil
}

// findPrecedent pulls the best stored pattern for the event: the exact
// fingerprint when known, otherwise the highest-scoring context match that
// clears the relevance thresholds.
func findPrecedent(ctx context.Context, store *pattern.SQLiteStore, event *types.ErrorEvent) (*types.PatternRecord, error) {
	exact, err := store.LookupPattern(ctx, event.Fingerprint)
	if err != nil || exact != nil {
		return exact, err
	}

	var language, category string
	if event.Context != nil {
		language = event.Context.Language
		category = event.Context.ErrorCategory
	}
	candidates, err := store.LookupPatternsScored(ctx, event.Fingerprint, language, category)
	if err != nil {
		return nil, err
	}

	matcher := relevance.NewMatcher(relevance.NewScorer())
	var best *relevance.Match
	for _, candidate := range candidates {
		projectIDs, err := store.GetPatternProjectIDs(ctx, candidate.Fingerprint)
		if err != nil {
			return nil, err
		}
		sharing := true
		for _, id := range projectIDs {
			if id == cfg.Project.ID {
				continue
			}
			share, err := store.GetProjectShareSetting(ctx, id)
			if err != nil {
				return nil, err
			}
			if !share {
				sharing = false
				break
			}
		}

		match, ok := matcher.Eligible(candidate, event.Context, cfg.Project.ID, projectIDs, sharing)
		if !ok {
			continue
		}
		if best == nil || match.Score > best.Score {
			best = match
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Pattern, nil
}

func loadInputs() (*types.ErrorEvent, *types.SuggestedFix, error) {
	var event types.ErrorEvent
	if err := readJSON(eventPath, &event); err != nil {
		return nil, nil, fmt.Errorf("failed to read event: %w", err)
	}
	var fix types.SuggestedFix
	if err := readJSON(fixPath, &fix); err != nil {
		return nil, nil, fmt.Errorf("failed to read fix: %w", err)
	}
	return &event, &fix, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// buildPipeline wires every component from configuration. Each stateful
// component is constructed once here and injected.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	brkStore, err := breaker.NewFileStore(cfg.Storage.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open breaker store: %w", err)
	}
	brk := breaker.New(
		breaker.WithMaxReverts(cfg.Breaker.MaxRevertsPerHour),
		breaker.WithCooldown(config.Duration(cfg.Breaker.Cooldown, breaker.DefaultCooldown)),
		breaker.WithStore(brkStore),
	)

	estimates := make([]float64, 0, len(cfg.Judges.Models))
	costs := make(map[string]float64, len(cfg.Judges.Models))
	for _, m := range cfg.Judges.Models {
		estimates = append(estimates, m.CostEstimate)
		costs[m.Name] = m.CostEstimate
	}
	guard := budget.NewGuard(
		budget.WithDailyCostCeiling(cfg.Budget.DailyCostCeiling),
		budget.WithDailyValidationCeiling(cfg.Budget.DailyValidationCeiling),
		budget.WithPerValidationCap(cfg.Budget.PerValidationCap),
		budget.WithJudgeCostEstimates(estimates),
	)

	callers, err := judge.CallersFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	panel := judge.New(callers,
		judge.WithCallTimeout(config.Duration(cfg.Judges.CallTimeout, judge.DefaultCallTimeout)),
		judge.WithLogger(logger))

	deps := pipeline.Deps{
		Categorizer: safety.New(cfg.Safety.ProtectedPaths),
		Cascade:     cascade.NewDetector(cascade.WithHotThreshold(cfg.Cascade.HotThreshold)),
		Breaker:     brk,
		Budget:      guard,
		Judge:       panel,
		Runner:      runner.NewLocalRunner(cfg.Runner.Workdir, cfg.Runner.BuildCmd, cfg.Runner.TestCmd, cfg.Runner.LintCmd),
		Logger:      logger,
	}

	return pipeline.New(deps,
		pipeline.WithKillSwitch(cfg.KillSwitch),
		pipeline.WithSkipVerification(skipVerification),
		pipeline.WithVerificationChecks(!cfg.Pipeline.SkipBuild, !cfg.Pipeline.SkipTests, !cfg.Pipeline.SkipLint),
		pipeline.WithHardConstraints(cfg.Pipeline.MaxAffectedFiles, cfg.Pipeline.MaxLinesChanged),
		pipeline.WithVerificationTimeouts(
			config.Duration(cfg.Pipeline.BuildTimeout, 0),
			config.Duration(cfg.Pipeline.TestTimeout, 0),
			config.Duration(cfg.Pipeline.LintTimeout, 0),
		),
		pipeline.WithVoteCost(func(model string) float64 {
			if c, ok := costs[model]; ok && c > 0 {
				return c
			}
			return 0.01
		}),
	), nil
}
