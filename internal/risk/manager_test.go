package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"aiTradeEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRegimeSource struct {
	snap *domain.MarketRegimeSnapshot
	err  error
}

func (m *mockRegimeSource) GetLatestRegime(ctx context.Context, symbol string) (*domain.MarketRegimeSnapshot, error) {
	return m.snap, m.err
}

// portfolioWithBase returns a portfolio whose base risk amount equals base.
func portfolioWithBase(base float64) *domain.Portfolio {
	return &domain.Portfolio{Balance: base * 100, Equity: base * 100, RiskValuePercent: 1}
}

func TestSizeWithRegime_Scenario(t *testing.T) {
	rm := NewRiskManager(RiskConfig{}, nil)
	regime := &domain.MarketRegimeSnapshot{
		Regime:           domain.RegimeBull,
		RegimeConfidence: 0.85,
		Volatility24h:    0.015,
		AnomalyScore:     0.1,
	}

	res := rm.SizeWithRegime(portfolioWithBase(1000), 75, regime, 1.0)
	assert.InDelta(t, 1000.0, res.BaseAmount, 1e-9)
	assert.InDelta(t, 1.452, res.Multiplier, 1e-9)
	assert.InDelta(t, 1452.0, res.Amount, 1e-6)
	assert.False(t, res.Vetoed)
}

func TestSizeWithRegime_ClampAndAdjustment(t *testing.T) {
	rm := NewRiskManager(RiskConfig{}, nil)
	p := portfolioWithBase(1000)

	// 0.5 * 0.8 * 0.6 * 0.5 * 0.8 = 0.096 -> clamped to 0.1
	low := &domain.MarketRegimeSnapshot{Regime: domain.RegimeReversal, RegimeConfidence: 0.3, Volatility24h: 0.08, AnomalyScore: 0.6}
	res := rm.SizeWithRegime(p, 40, low, 1.0)
	assert.Equal(t, 0.1, res.Multiplier)
	assert.InDelta(t, 100.0, res.Amount, 1e-9)

	// Adjustment applies after the clamp.
	res = rm.SizeWithRegime(p, 40, low, 0.6)
	assert.InDelta(t, 60.0, res.Amount, 1e-9)

	// 1.2 * 1.1 * 1.2 * 1.0 * 1.2 = 1.9008 stays under the 2.0 ceiling
	high := &domain.MarketRegimeSnapshot{Regime: domain.RegimeBull, RegimeConfidence: 0.9, Volatility24h: 0.001}
	res = rm.SizeWithRegime(p, 90, high, 1.0)
	assert.InDelta(t, 1.9008, res.Multiplier, 1e-9)
	assert.LessOrEqual(t, res.Multiplier, 2.0)
}

func TestSizeWithRegime_NoRegime(t *testing.T) {
	rm := NewRiskManager(RiskConfig{}, nil)
	res := rm.SizeWithRegime(portfolioWithBase(500), 95, nil, 0.7)
	assert.Equal(t, 1.0, res.Multiplier)
	assert.InDelta(t, 350.0, res.Amount, 1e-9)
}

func TestSizeWithRegime_AnomalyVeto(t *testing.T) {
	rm := NewRiskManager(RiskConfig{}, nil)
	p := portfolioWithBase(1000)
	res := rm.SizeWithRegime(p, 90, &domain.MarketRegimeSnapshot{Regime: domain.RegimeBull, AnomalyScore: 0.75}, 1.0)
	// The veto bypasses the [0.1, 2.0] clamp: the multiplier is 0 so no position can open.
	assert.True(t, res.Vetoed)
	assert.Equal(t, 0.0, res.Multiplier)
	assert.Equal(t, 0.0, res.Amount)
	assert.False(t, p.CanOpenPosition(res.Amount))
}

func TestSizeWithRegime_UsesAvailableBalance(t *testing.T) {
	rm := NewRiskManager(RiskConfig{}, nil)
	p := &domain.Portfolio{Balance: 10000, OpenExposure: 4000, RiskValuePercent: 2}
	res := rm.SizeWithRegime(p, 60, nil, 1.0)
	assert.InDelta(t, 120.0, res.Amount, 1e-9)
}

func TestSize_FetchesRegime(t *testing.T) {
	src := &mockRegimeSource{snap: &domain.MarketRegimeSnapshot{Regime: domain.RegimeBear, RegimeConfidence: 0.5, Volatility24h: 0.015}}
	rm := NewRiskManager(RiskConfig{}, src)

	res, err := rm.Size(context.Background(), portfolioWithBase(1000), 60, "BTCUSDT", 1.0)
	require.NoError(t, err)
	// 0.8 * 0.9 * 1.0 * 1.0 * 1.0
	assert.InDelta(t, 720.0, res.Amount, 1e-9)

	src.err = errors.New("db")
	res, err = rm.Size(context.Background(), portfolioWithBase(1000), 60, "BTCUSDT", 1.0)
	assert.Error(t, err)
	assert.InDelta(t, 1000.0, res.Amount, 1e-9)
}

func TestNewRiskManager_Defaults(t *testing.T) {
	rm := NewRiskManager(RiskConfig{}, nil)
	assert.Equal(t, 24*time.Hour, rm.MaxHoldingDuration())
	assert.Equal(t, Band{StopLossPct: -3, TakeProfitPct: 6}, rm.Band(domain.RiskMode("")))
	assert.Equal(t, Band{StopLossPct: -5, TakeProfitPct: 10}, rm.Band(domain.RiskAggressive))
}
