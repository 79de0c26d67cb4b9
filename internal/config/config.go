// Package config loads mendgate configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mendgate configuration.
type Config struct {
	// Project identity, used for pattern attribution and sharing.
	Project ProjectConfig `yaml:"project"`

	// Consensus judges.
	Judges JudgesConfig `yaml:"judges"`

	// Pipeline timeouts and verification toggles.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Safety categorization.
	Safety SafetyConfig `yaml:"safety"`

	// Spend ceilings.
	Budget BudgetConfig `yaml:"budget"`

	// Circuit breaker tuning.
	Breaker BreakerConfig `yaml:"breaker"`

	// Cascade detection tuning.
	Cascade CascadeConfig `yaml:"cascade"`

	// Verification command execution.
	Runner RunnerConfig `yaml:"runner"`

	// Storage paths.
	Storage StorageConfig `yaml:"storage"`

	// Logging.
	Logging LoggingConfig `yaml:"logging"`

	// KillSwitch disables all automated fixing when true.
	KillSwitch bool `yaml:"kill_switch"`
}

// ProjectConfig identifies the project under repair.
type ProjectConfig struct {
	ID            string `yaml:"id"`
	SharePatterns bool   `yaml:"share_patterns"`
}

// JudgeModel configures one external judge model.
type JudgeModel struct {
	Name         string  `yaml:"name"`
	Provider     string  `yaml:"provider"` // openai, anthropic, gemini, zai
	Weight       float64 `yaml:"weight"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	BaseURL      string  `yaml:"base_url"`
	CostEstimate float64 `yaml:"cost_estimate"` // USD per call
}

// JudgesConfig configures the consensus panel.
type JudgesConfig struct {
	Models      []JudgeModel `yaml:"models"`
	CallTimeout string       `yaml:"call_timeout"`

	// Reserved deliberation knobs. Parsed and validated but not consulted
	// by the tally, which is an unweighted majority.
	EnableRedeliberation bool    `yaml:"enable_redeliberation"`
	CertaintyThreshold   float64 `yaml:"certainty_threshold"`
}

// PipelineConfig configures the three validation phases.
type PipelineConfig struct {
	PreFlightTimeout string `yaml:"pre_flight_timeout"`
	BuildTimeout     string `yaml:"build_timeout"`
	TestTimeout      string `yaml:"test_timeout"`
	LintTimeout      string `yaml:"lint_timeout"`

	SkipBuild bool `yaml:"skip_build"`
	SkipTests bool `yaml:"skip_tests"`
	SkipLint  bool `yaml:"skip_lint"`

	MaxAffectedFiles int `yaml:"max_affected_files"`
	MaxLinesChanged  int `yaml:"max_lines_changed"`
}

// SafetyConfig configures the categorizer.
type SafetyConfig struct {
	ProtectedPaths []string `yaml:"protected_paths"`
}

// BudgetConfig configures the cost guard.
type BudgetConfig struct {
	DailyCostCeiling       float64 `yaml:"daily_cost_ceiling"`
	DailyValidationCeiling int     `yaml:"daily_validation_ceiling"`
	PerValidationCap       float64 `yaml:"per_validation_cap"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	MaxRevertsPerHour int    `yaml:"max_reverts_per_hour"`
	Cooldown          string `yaml:"cooldown"`
}

// CascadeConfig configures cascade detection.
type CascadeConfig struct {
	HotThreshold int `yaml:"hot_threshold"`
}

// RunnerConfig configures verification commands.
type RunnerConfig struct {
	Workdir  string `yaml:"workdir"`
	BuildCmd string `yaml:"build_cmd"`
	TestCmd  string `yaml:"test_cmd"`
	LintCmd  string `yaml:"lint_cmd"`
}

// StorageConfig configures persistence locations.
type StorageConfig struct {
	PatternDB string `yaml:"pattern_db"`
	StateDir  string `yaml:"state_dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			ID:            "default",
			SharePatterns: true,
		},

		Judges: JudgesConfig{
			Models: []JudgeModel{
				{Name: "gpt-4o-mini", Provider: "openai", Weight: 1.0, APIKeyEnv: "OPENAI_API_KEY", CostEstimate: 0.01},
				{Name: "claude-3-5-haiku-latest", Provider: "anthropic", Weight: 1.0, APIKeyEnv: "ANTHROPIC_API_KEY", CostEstimate: 0.01},
				{Name: "gemini-2.0-flash", Provider: "gemini", Weight: 0.8, APIKeyEnv: "GEMINI_API_KEY", CostEstimate: 0.005},
			},
			CallTimeout:        "45s",
			CertaintyThreshold: 0.8,
		},

		Pipeline: PipelineConfig{
			PreFlightTimeout: "10s",
			BuildTimeout:     "120s",
			TestTimeout:      "300s",
			LintTimeout:      "60s",
			MaxAffectedFiles: 2,
			MaxLinesChanged:  30,
		},

		Safety: SafetyConfig{
			ProtectedPaths: []string{
				".env", ".env.*", "*.pem", "*.key",
				"secrets/*", "migrations/*",
				".github/*", "Dockerfile", "docker-compose*",
			},
		},

		Budget: BudgetConfig{
			DailyCostCeiling:       10.0,
			DailyValidationCeiling: 100,
			PerValidationCap:       0.50,
		},

		Breaker: BreakerConfig{
			MaxRevertsPerHour: 2,
			Cooldown:          "30m",
		},

		Cascade: CascadeConfig{
			HotThreshold: 3,
		},

		Runner: RunnerConfig{
			Workdir: ".",
		},

		Storage: StorageConfig{
			PatternDB: "data/patterns.db",
			StateDir:  "data/state",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Judges.Models) == 0 {
		return fmt.Errorf("at least one judge model is required")
	}
	for _, m := range c.Judges.Models {
		if m.Name == "" {
			return fmt.Errorf("judge model missing a name")
		}
		if m.Provider == "" {
			return fmt.Errorf("judge model %q missing a provider", m.Name)
		}
	}
	for name, value := range map[string]string{
		"judges.call_timeout":         c.Judges.CallTimeout,
		"pipeline.pre_flight_timeout": c.Pipeline.PreFlightTimeout,
		"pipeline.build_timeout":      c.Pipeline.BuildTimeout,
		"pipeline.test_timeout":       c.Pipeline.TestTimeout,
		"pipeline.lint_timeout":       c.Pipeline.LintTimeout,
		"breaker.cooldown":            c.Breaker.Cooldown,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}
	if c.Judges.CertaintyThreshold < 0 || c.Judges.CertaintyThreshold > 1 {
		return fmt.Errorf("judges.certainty_threshold must be in [0,1]")
	}
	return nil
}

// SortedModels returns the judge models ordered by weight, highest first.
// Ties keep configuration order.
func (c *Config) SortedModels() []JudgeModel {
	models := make([]JudgeModel, len(c.Judges.Models))
	copy(models, c.Judges.Models)
	sort.SliceStable(models, func(i, j int) bool {
		return models[i].Weight > models[j].Weight
	})
	return models
}

// Duration parses a duration string with a fallback.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEND_PROJECT_ID"); v != "" {
		c.Project.ID = v
	}
	if v := os.Getenv("MEND_DISABLE"); v != "" {
		if disabled, err := strconv.ParseBool(v); err == nil {
			c.KillSwitch = disabled
		}
	}
	if v := os.Getenv("MEND_PATTERN_DB"); v != "" {
		c.Storage.PatternDB = v
	}
	if v := os.Getenv("MEND_STATE_DIR"); v != "" {
		c.Storage.StateDir = v
	}
	if v := os.Getenv("MEND_DAILY_COST_CEILING"); v != "" {
		if usd, err := strconv.ParseFloat(v, 64); err == nil && usd > 0 {
			c.Budget.DailyCostCeiling = usd
		}
	}
	if v := os.Getenv("MEND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
