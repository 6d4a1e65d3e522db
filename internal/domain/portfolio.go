package domain

import (
	"math"
	"time"
)

// Portfolio holds a user's account state and risk settings.
type Portfolio struct {
	ID               int64
	UserID           int64
	Balance          float64
	Equity           float64
	InitialBalance   float64
	RealizedPnL      float64
	FloatingPnL      float64
	RiskMode         RiskMode
	RiskValuePercent float64 // Percent of available balance risked per position
	AITradeEnabled   bool
	OpenExposure     float64 // Sum of investment over OPEN positions, loaded with the portfolio
	UpdatedAt        time.Time
}

// AvailableBalance is the capacity for new risk exposure: balance minus committed open investment.
func (p *Portfolio) AvailableBalance() float64 {
	return math.Max(0, p.Balance-p.OpenExposure)
}

// CanOpenPosition reports whether amount fits the available balance.
func (p *Portfolio) CanOpenPosition(amount float64) bool {
	return amount > 0 && amount <= p.AvailableBalance()
}

// BaseRiskAmount is riskValuePercent% of the available balance.
func (p *Portfolio) BaseRiskAmount() float64 {
	return p.AvailableBalance() * p.RiskValuePercent / 100
}

// CanTrade reports whether the engine should execute decisions for this portfolio.
func (p *Portfolio) CanTrade() bool {
	return p.AITradeEnabled && p.Equity > 0
}
