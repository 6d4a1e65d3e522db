package app

import (
	"fmt"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"
)

// ExecutionSummary reports how one decision was processed.
type ExecutionSummary struct {
	DecisionID int64
	RunID      string
	Status     domain.DecisionStatus
	Reason     string
	Total      int // Users considered
	Succeeded  int
	Skipped    int // Policy no-ops and users already executed in an earlier run
	Failed     int
}

// Err describes why the decision was not executed, nil for executed decisions.
func (s *ExecutionSummary) Err() error {
	switch s.Status {
	case domain.DecisionExpired:
		return fmt.Errorf("%w: %s", ports.ErrDecisionExpired, s.Reason)
	case domain.DecisionRejected:
		return fmt.Errorf("%w: %s", ports.ErrValidationRejected, s.Reason)
	}
	return nil
}

// PendingSummary reports a pass over all pending decisions.
type PendingSummary struct {
	Processed int
	Executed  int
	Rejected  int
	Expired   int
	Failed    int // Decisions that could not be processed and stay pending
}

// CloseSummary reports a sweep or bulk close over open positions.
type CloseSummary struct {
	Checked  int
	Closed   int
	Skipped  int
	Failed   int
	TotalPnL float64
}

// ManualCloseResult is the outcome of closing a single position on request.
type ManualCloseResult struct {
	Success    bool
	PnL        float64
	ClosePrice float64
	Message    string
}

// RepairResult is the outcome of recomputing a portfolio from its history.
type RepairResult struct {
	Success     bool
	Message     string
	Balance     float64
	Equity      float64
	RealizedPnL float64
}
