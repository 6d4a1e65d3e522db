package domain

import "strings"

// Action is the trading action carried by an upstream decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction normalizes a raw action string. The second value is false for unknown actions.
func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(raw))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	case ActionHold:
		return ActionHold, true
	default:
		return "", false
	}
}

// PositionType represents the direction of a position.
type PositionType string

const (
	Long  PositionType = "LONG"
	Short PositionType = "SHORT"
)

// Opposite returns the other side.
func (t PositionType) Opposite() PositionType {
	if t == Long {
		return Short
	}
	return Long
}

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss       CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit     CloseReason = "TAKE_PROFIT"
	CloseReasonRiskStopLoss   CloseReason = "RISK_STOP_LOSS"   // Risk-mode percentage band (loss side)
	CloseReasonRiskTakeProfit CloseReason = "RISK_TAKE_PROFIT" // Risk-mode percentage band (profit side)
	CloseReasonTimeLimit      CloseReason = "TIME_LIMIT"
	CloseReasonManual         CloseReason = "MANUAL"
	CloseReasonFlip           CloseReason = "auto-close for new position"
	CloseReasonUnknown        CloseReason = "UNKNOWN"
)

// RiskMode is the user-selected risk appetite of a portfolio.
type RiskMode string

const (
	RiskConservative RiskMode = "CONSERVATIVE"
	RiskModerate     RiskMode = "MODERATE"
	RiskAggressive   RiskMode = "AGGRESSIVE"
)
