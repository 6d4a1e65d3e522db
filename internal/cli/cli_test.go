package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"aiTradeEngine/config"
	"aiTradeEngine/internal/adapters/binanceclient"
	"aiTradeEngine/internal/adapters/logger"
	"aiTradeEngine/internal/adapters/sqlite"
	"aiTradeEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
portfolios:
  - user_id: 1
    balance: 10000
    risk_mode: moderate
  - user_id: 2
    balance: 5000
    risk_mode: AGGRESSIVE
    risk_value_percent: 1
    ai_trade_enabled: false
decisions:
  - symbol: btcusdt
    action: hold
    confidence: 55
    price: 64000
regimes:
  - symbol: BTCUSDT
    regime: Bull
    regime_confidence: 0.8
    volatility_24h: 0.02
    anomaly_score: 0.1
summary:
  market_sentiment: bullish
  market_health_score: 70
  trend_strength: 55
  regime_percentages:
    bull: 65
    volatile: 10
`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "engine.db"))
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("NOTIFY_WEBHOOK_URL", "")
	t.Setenv("ENGINE_CONFIG_FILE", "")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	seed := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0o644))
	return seed
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseSeed(t *testing.T) {
	sf, err := parseSeed([]byte(seedYAML))
	require.NoError(t, err)
	assert.Len(t, sf.Portfolios, 2)
	assert.Len(t, sf.Decisions, 1)
	require.NotNil(t, sf.Summary)
	assert.Equal(t, 65.0, sf.Summary.RegimePercentages["bull"])

	_, err = parseSeed([]byte("decisions:\n  - symbol: BTCUSDT\n    action: SHORT\n"))
	assert.ErrorContains(t, err, "unknown action")

	_, err = parseSeed([]byte("portfolios:\n  - user_id: 0\n    balance: 10\n"))
	assert.ErrorContains(t, err, "user_id must be positive")
}

func TestApplySeed(t *testing.T) {
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "seed.db"),
		Logger: logger.NewStdLogger(logger.LevelError),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	sf, err := parseSeed([]byte(seedYAML))
	require.NoError(t, err)

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	res, err := applySeed(ctx, repo, sf, now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Portfolios)
	assert.Equal(t, []int64{1}, res.Decisions)
	assert.Equal(t, 1, res.Regimes)
	assert.True(t, res.Summary)

	p, err := repo.LoadPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskModerate, p.RiskMode)
	assert.Equal(t, 2.0, p.RiskValuePercent)
	assert.True(t, p.AITradeEnabled)

	trading, err := repo.ListTradingPortfolios(ctx)
	require.NoError(t, err)
	require.Len(t, trading, 1)
	assert.Equal(t, int64(1), trading[0].UserID)

	d, err := repo.GetDecision(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", d.Symbol)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Equal(t, domain.DecisionPending, d.Status)

	regime, err := repo.GetLatestRegime(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, regime)
	assert.Equal(t, domain.RegimeBull, regime.Regime)

	summary, err := repo.GetSummaryForDate(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, domain.SentimentBullish, summary.MarketSentiment)
	assert.Equal(t, 10.0, summary.RegimePercent(domain.RegimeVolatile))
}

func TestRootCmd_SeedExecuteReport(t *testing.T) {
	seed := setupEnv(t)

	out, err := run(t, "seed", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 2 portfolios, 1 decisions")

	out, err = run(t, "execute", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Decision 1: EXECUTED")

	_, err = run(t, "execute", "1")
	assert.ErrorContains(t, err, "already executed")

	out, err = run(t, "report", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Portfolio of user 1 (MODERATE)")
	assert.Contains(t, out, "Closed positions: 0")

	csvPath := filepath.Join(t.TempDir(), "trades.csv")
	out, err = run(t, "report", "1", "--csv", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 0 trades")
	assert.FileExists(t, csvPath)

	out, err = run(t, "repair", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance: 10000.00  Equity: 10000.00")

	out, err = run(t, "close-all", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Checked 0: closed 0")
}

func TestRootCmd_InvalidArgs(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "execute", "abc")
	assert.ErrorContains(t, err, "invalid decision id")

	_, err = run(t, "report", "42")
	assert.Error(t, err)

	_, err = run(t, "close")
	assert.Error(t, err)
}

func TestRuntime_CheckExchange(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":-1001,"msg":"Internal error"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	log := logger.NewStdLogger(logger.LevelError)
	exchange, err := binanceclient.New(binanceclient.Config{BaseURL: srv.URL, Logger: log})
	require.NoError(t, err)
	rt := &runtime{cfg: &config.Config{PriceTimeout: time.Second}, logger: log, exchange: exchange}

	assert.True(t, rt.checkExchange(context.Background()))
	down.Store(true)
	assert.False(t, rt.checkExchange(context.Background()))
}
