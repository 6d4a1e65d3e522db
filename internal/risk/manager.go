package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"aiTradeEngine/internal/domain"
)

const (
	minMultiplier = 0.1
	maxMultiplier = 2.0
)

// Band is a pair of pnl-percentage close thresholds.
type Band struct {
	StopLossPct   float64 // Negative
	TakeProfitPct float64 // Positive
}

// RiskConfig holds configuration for risk management.
type RiskConfig struct {
	Bands              map[domain.RiskMode]Band
	MaxHoldingDuration time.Duration
}

// DefaultBands returns the built-in risk-mode close bands.
func DefaultBands() map[domain.RiskMode]Band {
	return map[domain.RiskMode]Band{
		domain.RiskConservative: {StopLossPct: -2, TakeProfitPct: 4},
		domain.RiskModerate:     {StopLossPct: -3, TakeProfitPct: 6},
		domain.RiskAggressive:   {StopLossPct: -5, TakeProfitPct: 10},
	}
}

// RegimeSource supplies the latest regime snapshot for a symbol.
type RegimeSource interface {
	GetLatestRegime(ctx context.Context, symbol string) (*domain.MarketRegimeSnapshot, error)
}

// RiskManager sizes positions, derives protective prices and decides closes.
// It holds no mutable state and is safe for concurrent use.
type RiskManager struct {
	config  RiskConfig
	regimes RegimeSource
}

// NewRiskManager creates a new risk manager instance.
// regimes may be nil when only SizeWithRegime is used.
func NewRiskManager(config RiskConfig, regimes RegimeSource) *RiskManager {
	if config.Bands == nil {
		config.Bands = DefaultBands()
	}
	if config.MaxHoldingDuration <= 0 {
		config.MaxHoldingDuration = 24 * time.Hour
	}
	return &RiskManager{config: config, regimes: regimes}
}

// SizeResult explains how a risk amount was derived.
type SizeResult struct {
	BaseAmount float64
	Multiplier float64 // Clamped regime/confidence stack, 1 when no regime data
	Adjustment float64 // Decision-level risk adjustment from validation
	Amount     float64
	Vetoed     bool // Anomaly veto forced the amount to 0
}

// SizeWithRegime computes the risk amount for a decision. regime may be nil.
func (r *RiskManager) SizeWithRegime(p *domain.Portfolio, confidence float64, regime *domain.MarketRegimeSnapshot, adjustment float64) SizeResult {
	res := SizeResult{
		BaseAmount: p.BaseRiskAmount(),
		Multiplier: 1.0,
		Adjustment: adjustment,
	}
	if regime != nil {
		anomaly := AnomalyMultiplier(regime.AnomalyScore)
		if anomaly == 0 {
			res.Multiplier = 0
			res.Vetoed = true
			return res
		}
		m := RegimeMultiplier(regime.Regime) *
			RegimeConfidenceMultiplier(regime.RegimeConfidence) *
			VolatilityMultiplier(regime.Volatility24h) *
			anomaly *
			ConfidenceMultiplier(confidence)
		res.Multiplier = clamp(m, minMultiplier, maxMultiplier)
	}
	res.Amount = res.BaseAmount * res.Multiplier * adjustment
	return res
}

// Size is the standalone sizing entry point: it loads the symbol's regime and computes the risk amount.
// A regime lookup failure sizes without regime data. The engine fetches the regime once per decision
// and calls SizeWithRegime for each user instead.
func (r *RiskManager) Size(ctx context.Context, p *domain.Portfolio, confidence float64, symbol string, adjustment float64) (SizeResult, error) {
	var regime *domain.MarketRegimeSnapshot
	if r.regimes != nil {
		snap, err := r.regimes.GetLatestRegime(ctx, symbol)
		if err != nil {
			return r.SizeWithRegime(p, confidence, nil, adjustment), fmt.Errorf("regime for %s: %w", symbol, err)
		}
		regime = snap
	}
	return r.SizeWithRegime(p, confidence, regime, adjustment), nil
}

// Band returns the close band for mode, MODERATE when unknown.
func (r *RiskManager) Band(mode domain.RiskMode) Band {
	if b, ok := r.config.Bands[mode]; ok {
		return b
	}
	return r.config.Bands[domain.RiskModerate]
}

// MaxHoldingDuration is the time limit for open positions.
func (r *RiskManager) MaxHoldingDuration() time.Duration {
	return r.config.MaxHoldingDuration
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
