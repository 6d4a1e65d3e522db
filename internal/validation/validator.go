// Package validation gates upstream decisions against market-regime context before sizing.
package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"
)

const (
	anomalyRejectAbove  = 0.7
	anomalyWarnAbove    = 0.5
	volatilityWarnAbove = 0.05
	confidentRegime     = 0.7
	dominantRegimePct   = 60.0
	weakTrendBelow      = 40.0
	volatileRegimePct   = 30.0
)

// Config holds the validation thresholds.
type Config struct {
	DecisionTTL     time.Duration
	MinMarketHealth float64 // 0-100
	MinAlignment    float64 // 0-1
	Now             func() time.Time
}

// Result is the outcome of validating one decision.
type Result struct {
	Valid          bool
	Expired        bool
	Reason         string
	RiskAdjustment float64
	Context        *domain.MarketContextSnapshot
}

// Validator checks decisions against the daily market summary and the symbol's latest regime.
type Validator struct {
	market ports.MarketContextProvider
	logger ports.Logger
	cfg    Config
	now    func() time.Time
}

// NewValidator creates a decision validator. Zero thresholds fall back to defaults.
func NewValidator(market ports.MarketContextProvider, logger ports.Logger, cfg Config) (*Validator, error) {
	if market == nil {
		return nil, errors.New("market context provider cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DecisionTTL <= 0 {
		cfg.DecisionTTL = 30 * time.Minute
	}
	if cfg.MinMarketHealth <= 0 {
		cfg.MinMarketHealth = 30
	}
	if cfg.MinAlignment <= 0 {
		cfg.MinAlignment = 0.3
	}
	v := &Validator{market: market, logger: logger, cfg: cfg, now: cfg.Now}
	if v.now == nil {
		v.now = time.Now
	}
	return v, nil
}

// Validate runs the expiry check, then market-context validation when today's summary exists,
// then the symbol-regime check. Lookup failures degrade to "no data" rather than rejecting.
func (v *Validator) Validate(ctx context.Context, d *domain.Decision) Result {
	op := "Validate"
	now := v.now()
	mc := &domain.MarketContextSnapshot{Source: "none", CapturedAt: now}
	res := Result{RiskAdjustment: 1.0, Context: mc}

	if reason, expired := v.expired(d, now); expired {
		res.Expired = true
		res.Reason = reason
		return res
	}

	var reasons []string

	summary, err := v.market.GetTodaysSummary(ctx)
	if err != nil {
		v.logger.Warn(ctx, op+": market summary unavailable, skipping market-context validation", map[string]interface{}{
			"decisionID": d.ID,
			"error":      err.Error(),
		})
		summary = nil
	}
	if summary != nil {
		mc.Source = "market_summary"
		mc.Sentiment = summary.MarketSentiment
		mc.HealthScore = summary.MarketHealthScore
		mc.TrendStrength = summary.TrendStrength

		if summary.MarketHealthScore < v.cfg.MinMarketHealth {
			res.Reason = fmt.Sprintf("market health %.1f below %.1f", summary.MarketHealthScore, v.cfg.MinMarketHealth)
			return res
		}
		alignment := AlignmentScore(d.Action, summary)
		mc.AlignmentScore = alignment
		if alignment < v.cfg.MinAlignment {
			res.Reason = fmt.Sprintf("%s conflicts with %s market sentiment (alignment %.2f)", d.Action, summary.MarketSentiment, alignment)
			return res
		}
		res.RiskAdjustment = RiskAdjustment(summary)
		reasons = append(reasons, fmt.Sprintf("market aligned (%.2f)", alignment))
	}

	regime, err := v.market.GetLatestRegime(ctx, d.Symbol)
	if err != nil {
		v.logger.Warn(ctx, op+": regime unavailable, treating as no data", map[string]interface{}{
			"symbol": d.Symbol,
			"error":  err.Error(),
		})
		regime = nil
	}
	if regime == nil {
		res.Valid = true
		res.Reason = strings.Join(append(reasons, "no regime data"), "; ")
		return res
	}

	if mc.Source == "none" {
		mc.Source = "symbol_regime"
	}
	mc.Regime = regime.Regime
	mc.RegimeConfidence = regime.RegimeConfidence
	mc.Volatility24h = regime.Volatility24h
	mc.AnomalyScore = regime.AnomalyScore

	if reason, ok := checkRegime(d.Action, regime); !ok {
		res.Reason = reason
		return res
	}

	fields := map[string]interface{}{"symbol": d.Symbol, "decisionID": d.ID}
	if regime.Volatility24h > volatilityWarnAbove {
		v.logger.Warn(ctx, op+": high volatility", mergeField(fields, "volatility", regime.Volatility24h))
	}
	if regime.AnomalyScore > anomalyWarnAbove {
		v.logger.Warn(ctx, op+": elevated anomaly score", mergeField(fields, "anomalyScore", regime.AnomalyScore))
	}

	res.Valid = true
	res.Reason = strings.Join(append(reasons, fmt.Sprintf("regime %s ok", regime.Regime)), "; ")
	return res
}

// Expired reports whether d is older than the decision TTL, with a reason when it is.
func (v *Validator) Expired(d *domain.Decision) (string, bool) {
	return v.expired(d, v.now())
}

func (v *Validator) expired(d *domain.Decision, now time.Time) (string, bool) {
	if !d.IsExpired(now, v.cfg.DecisionTTL) {
		return "", false
	}
	return fmt.Sprintf("decision expired: age %s exceeds %s", d.Age(now).Truncate(time.Second), v.cfg.DecisionTTL), true
}

// checkRegime applies the symbol-regime rejection rules.
func checkRegime(action domain.Action, regime *domain.MarketRegimeSnapshot) (string, bool) {
	if regime.AnomalyScore > anomalyRejectAbove {
		return fmt.Sprintf("market unstable (anomaly %.2f)", regime.AnomalyScore), false
	}
	if regime.RegimeConfidence <= confidentRegime {
		return "", true
	}
	switch {
	case regime.Regime == domain.RegimeReversal:
		return fmt.Sprintf("reversal regime (confidence %.2f)", regime.RegimeConfidence), false
	case regime.Regime == domain.RegimeBear && action == domain.ActionBuy:
		return fmt.Sprintf("BUY against bear regime (confidence %.2f)", regime.RegimeConfidence), false
	case regime.Regime == domain.RegimeBull && action == domain.ActionSell:
		return fmt.Sprintf("SELL against bull regime (confidence %.2f)", regime.RegimeConfidence), false
	}
	return "", true
}

// AlignmentScore measures agreement between action and the summary's sentiment, in [0, 1].
func AlignmentScore(action domain.Action, s *domain.MarketSummary) float64 {
	score := 0.5
	switch {
	case s.MarketSentiment.IsBullish():
		if action == domain.ActionBuy {
			score = 0.8
		} else if action == domain.ActionSell {
			score = 0.3
		}
	case s.MarketSentiment.IsBearish():
		if action == domain.ActionSell {
			score = 0.8
		} else if action == domain.ActionBuy {
			score = 0.3
		}
	}
	if (action == domain.ActionBuy && s.RegimePercent(domain.RegimeBull) > dominantRegimePct) ||
		(action == domain.ActionSell && s.RegimePercent(domain.RegimeBear) > dominantRegimePct) {
		score += 0.2
	}
	return math.Max(0, math.Min(1, score))
}

// RiskAdjustment shrinks size in weak-trend or volatile markets.
func RiskAdjustment(s *domain.MarketSummary) float64 {
	adj := 1.0
	if s.TrendStrength < weakTrendBelow {
		adj = 0.7
	}
	if s.RegimePercent(domain.RegimeVolatile) > volatileRegimePct {
		adj = math.Min(adj, 0.6)
	}
	return adj
}

func mergeField(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
