// Package types defines the shared domain model for the mendgate trust
// engine: error events, candidate fixes, judge votes, and the terminal
// validation result handed back to the fix applicator.
package types

import "time"

// ErrorSource identifies where an error was detected.
type ErrorSource string

const (
	SourceLog        ErrorSource = "log"
	SourceTerminal   ErrorSource = "terminal"
	SourceTranscript ErrorSource = "transcript"
	SourceWorkflow   ErrorSource = "workflow"
)

// ErrorEvent is a single error surfaced by the workflow. Once fingerprinted
// it is treated as immutable.
type ErrorEvent struct {
	ID          string      `json:"id"`
	Source      ErrorSource `json:"source"`
	Description string      `json:"description"`
	ErrorType   string      `json:"error_type,omitempty"`
	FilePath    string      `json:"file_path,omitempty"`
	Line        int         `json:"line,omitempty"`
	StackTrace  string      `json:"stack_trace,omitempty"`
	Command     string      `json:"command,omitempty"`
	ExitCode    int         `json:"exit_code,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`

	// Derived identity. Fingerprint is 16 hex chars, FingerprintCoarse 8.
	Fingerprint       string `json:"fingerprint,omitempty"`
	FingerprintCoarse string `json:"fingerprint_coarse,omitempty"`

	Context *PatternContext `json:"context,omitempty"`
}

// PatternContext is a sparse set of classification dimensions attached to an
// error. Matching weight ordering: language > category > phase/framework >
// os/runtime/package manager.
type PatternContext struct {
	Language       string  `json:"language,omitempty"`
	ErrorCategory  string  `json:"error_category,omitempty"`
	WorkflowPhase  string  `json:"workflow_phase,omitempty"`
	Framework      string  `json:"framework,omitempty"`
	OS             string  `json:"os,omitempty"`
	RuntimeVersion string  `json:"runtime_version,omitempty"`
	PackageManager string  `json:"package_manager,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// IsEmpty reports whether no dimension is set.
func (c *PatternContext) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.Language == "" && c.ErrorCategory == "" && c.WorkflowPhase == "" &&
		c.Framework == "" && c.OS == "" && c.RuntimeVersion == "" && c.PackageManager == ""
}

// SafetyCategory bounds the blast radius of an automated change.
type SafetyCategory string

const (
	SafetySafe     SafetyCategory = "safe"
	SafetyModerate SafetyCategory = "moderate"
	SafetyRisky    SafetyCategory = "risky"
)

// JudgeCount returns how many judge models a category requires.
func (c SafetyCategory) JudgeCount() int {
	switch c {
	case SafetySafe:
		return 1
	case SafetyModerate:
		return 2
	case SafetyRisky:
		return 3
	default:
		return 2
	}
}

// FixAction is the concrete change a fix proposes.
type FixAction struct {
	Diff          string         `json:"diff"`
	AffectedFiles []string       `json:"affected_files"`
	LinesChanged  int            `json:"lines_changed"`
	Category      SafetyCategory `json:"category,omitempty"`
}

// SuggestedFix pairs a candidate change with the evidence backing it.
type SuggestedFix struct {
	ID          string         `json:"id"`
	Fingerprint string         `json:"fingerprint"`
	Summary     string         `json:"summary"`
	Action      FixAction      `json:"action"`
	Pattern     *PatternRecord `json:"pattern,omitempty"`
	AppliedAt   time.Time      `json:"applied_at,omitempty"`
}

// RiskLevel is the pattern store's own risk assessment of a stored fix.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// PatternRecord is a stored (fingerprint -> fix) association with aggregate
// trust statistics, supplied by the pattern store.
type PatternRecord struct {
	Fingerprint      string          `json:"fingerprint"`
	FixTemplate      string          `json:"fix_template,omitempty"`
	SuccessCount     int             `json:"success_count"`
	FailureCount     int             `json:"failure_count"`
	ProjectCount     int             `json:"project_count"`
	Context          *PatternContext `json:"context,omitempty"`
	LastSuccessAt    *time.Time      `json:"last_success_at,omitempty"`
	LastFailureAt    *time.Time      `json:"last_failure_at,omitempty"`
	RiskLevel        RiskLevel       `json:"risk_level,omitempty"`
	VerifiedByHuman  bool            `json:"verified_by_human"`
	Evergreen        bool            `json:"evergreen"`
	PreSeeded        bool            `json:"pre_seeded"`
	VerifiedApplies  int             `json:"verified_applies"`
	HumanCorrections int             `json:"human_corrections"`
}

// Total returns success + failure count.
func (p *PatternRecord) Total() int {
	return p.SuccessCount + p.FailureCount
}

// JudgeVote is one external model's opinion on a candidate fix. A vote is
// produced for every queried model, including unreachable ones.
type JudgeVote struct {
	Model      string   `json:"model"`
	Approved   bool     `json:"approved"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Issues     []string `json:"issues,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Phase names the three ordered stages of the validation pipeline.
type Phase string

const (
	PhasePreFlight    Phase = "pre_flight"
	PhaseVerification Phase = "verification"
	PhaseApproval     Phase = "approval"
)

// CheckResult is the structured outcome of one build/test/lint sub-check.
// Timeouts convert into a failing result, never an error return.
type CheckResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message,omitempty"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// ValidationResult is the terminal, immutable decision of one validation
// call. Exactly one is returned per call.
type ValidationResult struct {
	ID                 string         `json:"id"`
	Approved           bool           `json:"approved"`
	Phase              Phase          `json:"phase"`
	Reason             string         `json:"reason"`
	Votes              []JudgeVote    `json:"votes,omitempty"`
	VerificationOutput []CheckResult  `json:"verification_output,omitempty"`
	EstimatedCost      float64        `json:"estimated_cost"`
	Category           SafetyCategory `json:"category,omitempty"`
	CompletedAt        time.Time      `json:"completed_at"`
}
