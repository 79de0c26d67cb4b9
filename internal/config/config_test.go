package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Project.ID)
	assert.True(t, cfg.Project.SharePatterns)
	assert.Len(t, cfg.Judges.Models, 3)
	assert.False(t, cfg.KillSwitch)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mendgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project:
  id: acme-api
judges:
  models:
    - name: gpt-4o
      provider: openai
      weight: 0.9
    - name: claude-sonnet-4-20250514
      provider: anthropic
      weight: 1.2
  call_timeout: 30s
budget:
  daily_cost_ceiling: 25.0
kill_switch: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme-api", cfg.Project.ID)
	assert.True(t, cfg.KillSwitch)
	assert.InDelta(t, 25.0, cfg.Budget.DailyCostCeiling, 1e-9)
	assert.Equal(t, 30*time.Second, Duration(cfg.Judges.CallTimeout, time.Minute))

	// Defaults survive for sections the file omits.
	assert.Equal(t, 2, cfg.Pipeline.MaxAffectedFiles)
	assert.Equal(t, 30, cfg.Pipeline.MaxLinesChanged)
}

func TestSortedModelsByWeightDescending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Judges.Models = []JudgeModel{
		{Name: "low", Provider: "openai", Weight: 0.5},
		{Name: "high", Provider: "anthropic", Weight: 1.5},
		{Name: "mid-a", Provider: "gemini", Weight: 1.0},
		{Name: "mid-b", Provider: "openai", Weight: 1.0},
	}

	sorted := cfg.SortedModels()
	names := make([]string, len(sorted))
	for i, m := range sorted {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, names, "stable sort keeps config order on ties")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Run("no models", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Judges.Models = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad duration", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Breaker.Cooldown = "half an hour"
		assert.Error(t, cfg.Validate())
	})

	t.Run("certainty out of range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Judges.CertaintyThreshold = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("model without provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Judges.Models = []JudgeModel{{Name: "x"}}
		assert.Error(t, cfg.Validate())
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEND_PROJECT_ID", "env-proj")
	t.Setenv("MEND_DISABLE", "true")
	t.Setenv("MEND_DAILY_COST_CEILING", "3.5")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-proj", cfg.Project.ID)
	assert.True(t, cfg.KillSwitch)
	assert.InDelta(t, 3.5, cfg.Budget.DailyCostCeiling, 1e-9)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "mendgate.yaml")
	cfg := DefaultConfig()
	cfg.Project.ID = "saved"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Project.ID)
}
