package domain

import "time"

// DecisionStatus tracks the lifecycle of an upstream decision.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "PENDING"
	DecisionRejected DecisionStatus = "REJECTED"
	DecisionExpired  DecisionStatus = "EXPIRED"
	DecisionExecuted DecisionStatus = "EXECUTED"
)

// Decision is an actionable trading recommendation produced by the signal pipeline.
type Decision struct {
	ID             int64
	Symbol         string
	Action         Action
	Confidence     float64 // 0-100
	Price          float64 // Price at decision time (informational)
	Explanation    string
	CreatedAt      time.Time
	Executed       bool
	Status         DecisionStatus
	RiskAdjustment float64
	RejectReason   string
	MarketContext  *MarketContextSnapshot // Context captured during validation (nullable)
}

// Age returns how long ago the decision was created.
func (d *Decision) Age(now time.Time) time.Duration {
	return now.Sub(d.CreatedAt)
}

// IsExpired reports whether the decision is older than ttl.
func (d *Decision) IsExpired(now time.Time, ttl time.Duration) bool {
	return d.Age(now) > ttl
}

// MarketContextSnapshot is the structured context recorded on a decision when it was validated.
type MarketContextSnapshot struct {
	Regime           Regime    `json:"regime,omitempty"`
	RegimeConfidence float64   `json:"regime_confidence,omitempty"`
	Volatility24h    float64   `json:"volatility_24h,omitempty"`
	AnomalyScore     float64   `json:"anomaly_score,omitempty"`
	Sentiment        Sentiment `json:"sentiment,omitempty"`
	HealthScore      float64   `json:"health_score,omitempty"`
	TrendStrength    float64   `json:"trend_strength,omitempty"`
	AlignmentScore   float64   `json:"alignment_score,omitempty"`
	Source           string    `json:"source"` // "market_summary", "symbol_regime" or "none"
	CapturedAt       time.Time `json:"captured_at"`
}
