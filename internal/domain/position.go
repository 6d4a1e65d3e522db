package domain

import "time"

// Position represents a position held for a user.
type Position struct {
	ID            int64
	UserID        int64
	PortfolioID   int64
	DecisionID    int64 // 0 for positions not tied to a decision
	Symbol        string
	Type          PositionType
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	Investment    float64 // Notional committed at entry
	FloatingPnL   float64
	PnLPercentage float64
	StopLoss      float64 // 0 means not set
	TakeProfit    float64 // 0 means not set
	Status        PositionStatus
	OpenedAt      time.Time
	ClosedAt      time.Time // Zero value while open
	ClosePrice    float64
	RealizedPnL   float64
	CloseReason   CloseReason
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// PnLAt computes the profit or loss of the position at the given price.
func (p *Position) PnLAt(price float64) float64 {
	if p.Type == Short {
		return (p.EntryPrice - price) * p.Quantity
	}
	return (price - p.EntryPrice) * p.Quantity
}

// MarkToMarket refreshes the current price and floating PnL fields.
func (p *Position) MarkToMarket(price float64) {
	p.CurrentPrice = price
	p.FloatingPnL = p.PnLAt(price)
	if p.Investment > 0 {
		p.PnLPercentage = p.FloatingPnL / p.Investment * 100
	} else {
		p.PnLPercentage = 0
	}
}

// Close marks the position closed at price and returns the realized PnL.
func (p *Position) Close(price float64, reason CloseReason, at time.Time) float64 {
	p.MarkToMarket(price)
	p.RealizedPnL = p.FloatingPnL
	p.ClosePrice = price
	p.Status = StatusClosed
	p.ClosedAt = at
	p.CloseReason = reason
	p.FloatingPnL = 0
	return p.RealizedPnL
}

// HoldingDuration returns how long the position has been (or was) open.
func (p *Position) HoldingDuration(now time.Time) time.Duration {
	if !p.ClosedAt.IsZero() {
		return p.ClosedAt.Sub(p.OpenedAt)
	}
	return now.Sub(p.OpenedAt)
}
