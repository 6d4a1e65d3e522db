package domain

import "time"

// Regime is a discrete market-condition label.
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeNeutral  Regime = "neutral"
	RegimeReversal Regime = "reversal"
	RegimeVolatile Regime = "volatile" // Only appears in summary regime percentages
)

// Sentiment is the aggregate market sentiment label of a daily summary.
type Sentiment string

const (
	SentimentExtremelyBullish Sentiment = "extremely_bullish"
	SentimentBullish          Sentiment = "bullish"
	SentimentNeutral          Sentiment = "neutral"
	SentimentBearish          Sentiment = "bearish"
	SentimentExtremelyBearish Sentiment = "extremely_bearish"
)

// IsBullish reports whether the sentiment leans bullish.
func (s Sentiment) IsBullish() bool {
	return s == SentimentBullish || s == SentimentExtremelyBullish
}

// IsBearish reports whether the sentiment leans bearish.
func (s Sentiment) IsBearish() bool {
	return s == SentimentBearish || s == SentimentExtremelyBearish
}

// MarketRegimeSnapshot is the per-symbol regime analysis produced by the analytics collaborator.
type MarketRegimeSnapshot struct {
	ID               int64
	Symbol           string
	Regime           Regime
	RegimeConfidence float64 // 0-1
	Volatility24h    float64 // Fraction, 0.02 == 2%
	AnomalyScore     float64 // 0-1
	Timestamp        time.Time
}

// MarketSummary is the aggregate market-health summary for one calendar day.
type MarketSummary struct {
	ID                int64
	Date              time.Time
	MarketSentiment   Sentiment
	MarketHealthScore float64            // 0-100
	TrendStrength     float64            // 0-100
	RegimePercentages map[Regime]float64 // regime -> percent (0-100)
}

// RegimePercent returns the percentage for a regime, 0 when absent.
func (s *MarketSummary) RegimePercent(r Regime) float64 {
	if s.RegimePercentages == nil {
		return 0
	}
	return s.RegimePercentages[r]
}
