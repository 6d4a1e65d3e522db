package domain

import "time"

// TradeAction distinguishes opening and closing entries in the trade history.
type TradeAction string

const (
	TradeOpen  TradeAction = "OPEN"
	TradeClose TradeAction = "CLOSE"
)

// TradeHistoryEntry is an immutable append-only record of an open or close.
type TradeHistoryEntry struct {
	ID         int64
	UserID     int64
	DecisionID int64
	PositionID int64
	Symbol     string
	Action     TradeAction
	Type       PositionType
	Quantity   float64
	Price      float64
	Amount     float64  // price * quantity
	PnL        *float64 // Set on CLOSE entries only
	Notes      string
	CreatedAt  time.Time
}

// ExecutionOutcome is the per-user result of executing a decision.
type ExecutionOutcome string

const (
	OutcomeSucceeded ExecutionOutcome = "SUCCEEDED"
	OutcomeSkipped   ExecutionOutcome = "SKIPPED"
	OutcomeFailed    ExecutionOutcome = "FAILED"
)

// ExecutionRecord marks that a decision was processed for a user.
// A SUCCEEDED record makes a retried decision skip that user.
type ExecutionRecord struct {
	ID         int64
	DecisionID int64
	UserID     int64
	Outcome    ExecutionOutcome
	PositionID int64
	Reason     string
	CreatedAt  time.Time
}
