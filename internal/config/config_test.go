package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/engine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.Draft.TeamSize)
	assert.Equal(t, engine.DefaultLimits(), cfg.Limits())
	assert.Equal(t, balance.DefaultWeights(), cfg.Weights())
	assert.Equal(t, balance.DefaultSettings(), cfg.BalanceSettings())
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 3, cfg.Resilient().MaxRetries)
	assert.Equal(t, "./data/draft.db", cfg.Storage().SQLitePath)
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DRAFT_TEAM_SIZE=3\nDRAFT_SELECTION_TIMEOUT=45s\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DRAFT_TEAM_SIZE")
		os.Unsetenv("DRAFT_SELECTION_TIMEOUT")
	})
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Draft.TeamSize)
	assert.Equal(t, 45*time.Second, cfg.Limits().Selection)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadReportsEveryProblem(t *testing.T) {
	t.Setenv("DRAFT_TEAM_SIZE", "4")
	t.Setenv("BALANCE_ALGORITHM", "annealing")
	t.Setenv("BALANCE_WEIGHT_SKILL", "0.9")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DRAFT_TEAM_SIZE")
	assert.Contains(t, err.Error(), "annealing")
	assert.ErrorIs(t, err, balance.ErrInvalidWeights)
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("DRAFT_TEAM_SIZE", "five")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}
