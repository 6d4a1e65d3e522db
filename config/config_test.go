package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"aiTradeEngine/internal/adapters/logger"
	"aiTradeEngine/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/engine.db")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/engine.db", cfg.DBPath)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.PriceTimeout)
	assert.Equal(t, 2, cfg.PriceMaxRetries)
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 30*time.Minute, cfg.Engine.DecisionTTL)
	assert.Equal(t, 10, cfg.Engine.MaxOpenPositions)
	assert.Equal(t, RiskBand{StopLossPct: -3, TakeProfitPct: 6}, cfg.Engine.RiskBands["MODERATE"])
}

func TestLoadConfig_CollectsErrors(t *testing.T) {
	t.Setenv("PRICE_TIMEOUT_SECONDS", "abc")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("BINANCE_API_KEY", "key-without-secret")

	cfg, err := LoadConfig()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	assert.Contains(t, err.Error(), "PRICE_TIMEOUT_SECONDS")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
	assert.Contains(t, err.Error(), "BINANCE_API_KEY and BINANCE_API_SECRET")
}

func TestLoadEngineConfig_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := `
decision_ttl: 15m
max_open_positions: 5
risk_bands:
  conservative:
    stop_loss_pct: -1.5
    take_profit_pct: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ec, err := LoadEngineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, ec.DecisionTTL)
	assert.Equal(t, 5, ec.MaxOpenPositions)
	assert.Equal(t, 24*time.Hour, ec.MaxHoldingDuration)
	assert.Equal(t, RiskBand{StopLossPct: -1.5, TakeProfitPct: 3}, ec.RiskBands["CONSERVATIVE"])
	assert.Equal(t, RiskBand{StopLossPct: -5, TakeProfitPct: 10}, ec.RiskBands["AGGRESSIVE"])
}

func TestLoadEngineConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk_bands:\n  MODERATE:\n    stop_loss_pct: 3\n    take_profit_pct: 6\n"), 0o644))

	_, err := LoadEngineConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk band MODERATE")

	_, err = LoadEngineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
