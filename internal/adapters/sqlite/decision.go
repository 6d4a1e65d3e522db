package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"
)

const decisionColumns = `
	id, symbol, action, confidence, price, explanation, created_at, executed, status,
	risk_adjustment, reject_reason, market_context`

// CreateDecision saves a new upstream decision.
func (r *Repository) CreateDecision(ctx context.Context, d *domain.Decision) (int64, error) {
	const query = `
	INSERT INTO decisions (symbol, action, confidence, price, explanation, created_at, executed,
	                       status, risk_adjustment, reject_reason, market_context)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = domain.DecisionPending
	}
	if d.RiskAdjustment == 0 {
		d.RiskAdjustment = 1.0
	}
	mc, err := encodeMarketContext(d.MarketContext)
	if err != nil {
		return 0, err
	}

	result, err := r.q.ExecContext(ctx, query,
		d.Symbol, d.Action, d.Confidence, d.Price, d.Explanation, d.CreatedAt.UTC(), d.Executed,
		d.Status, d.RiskAdjustment, d.RejectReason, mc)
	if err != nil {
		return 0, fmt.Errorf("failed to insert decision for %s: %w", d.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for decision %s: %w", d.Symbol, err)
	}
	d.ID = id
	return id, nil
}

// GetDecision retrieves a decision by ID.
func (r *Repository) GetDecision(ctx context.Context, id int64) (*domain.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = ?`
	d, err := scanDecision(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision %d: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query decision %d: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return d, nil
}

// UpdateDecision moves a PENDING, non-executed decision to its final status.
// It returns ErrAlreadyExecuted when another run already finalized the decision.
func (r *Repository) UpdateDecision(ctx context.Context, d *domain.Decision) error {
	const query = `
	UPDATE decisions
	SET executed = ?, status = ?, risk_adjustment = ?, reject_reason = ?, market_context = ?
	WHERE id = ? AND executed = 0 AND status = ?`

	mc, err := encodeMarketContext(d.MarketContext)
	if err != nil {
		return err
	}
	result, err := r.q.ExecContext(ctx, query, d.Executed, d.Status, d.RiskAdjustment, d.RejectReason, mc, d.ID, domain.DecisionPending)
	if err != nil {
		return fmt.Errorf("failed to update decision %d: %w: %w", d.ID, ports.ErrUpdateFailed, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for decision %d: %w", d.ID, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetDecision(ctx, d.ID); err != nil {
		return err
	}
	return fmt.Errorf("decision %d is no longer pending: %w", d.ID, ports.ErrAlreadyExecuted)
}

// ListPendingDecisions returns non-executed PENDING decisions, oldest first.
func (r *Repository) ListPendingDecisions(ctx context.Context) ([]*domain.Decision, error) {
	query := `SELECT ` + decisionColumns + `
	FROM decisions
	WHERE executed = 0 AND status = ?
	ORDER BY created_at ASC, id ASC`

	rows, err := r.q.QueryContext(ctx, query, domain.DecisionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending decisions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	decisions := make([]*domain.Decision, 0)
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}
	return decisions, nil
}

// FindExecution returns the execution record for (decision, user), nil if absent.
func (r *Repository) FindExecution(ctx context.Context, decisionID, userID int64) (*domain.ExecutionRecord, error) {
	const query = `
	SELECT id, decision_id, user_id, outcome, position_id, reason, created_at
	FROM decision_executions WHERE decision_id = ? AND user_id = ?`

	rec := &domain.ExecutionRecord{}
	var outcome string
	var positionID sql.NullInt64
	err := r.q.QueryRowContext(ctx, query, decisionID, userID).Scan(
		&rec.ID, &rec.DecisionID, &rec.UserID, &outcome, &positionID, &rec.Reason, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query execution for decision %d user %d: %w: %w", decisionID, userID, ports.ErrQueryFailed, err)
	}
	rec.Outcome = domain.ExecutionOutcome(outcome)
	rec.PositionID = positionID.Int64
	return rec, nil
}

// RecordExecution inserts or replaces the record for (decision, user). A SUCCEEDED record is never replaced.
func (r *Repository) RecordExecution(ctx context.Context, rec *domain.ExecutionRecord) error {
	const query = `
	INSERT INTO decision_executions (decision_id, user_id, outcome, position_id, reason, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (decision_id, user_id) DO UPDATE SET
		outcome = excluded.outcome,
		position_id = excluded.position_id,
		reason = excluded.reason,
		created_at = excluded.created_at
	WHERE decision_executions.outcome <> ?`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, query,
		rec.DecisionID, rec.UserID, rec.Outcome, nullInt64(rec.PositionID), rec.Reason, rec.CreatedAt.UTC(),
		domain.OutcomeSucceeded)
	if err != nil {
		return fmt.Errorf("failed to record execution for decision %d user %d: %w", rec.DecisionID, rec.UserID, err)
	}
	return nil
}

func scanDecision(s scanner) (*domain.Decision, error) {
	d := &domain.Decision{}
	var action, status string
	var mc sql.NullString
	err := s.Scan(&d.ID, &d.Symbol, &action, &d.Confidence, &d.Price, &d.Explanation, &d.CreatedAt,
		&d.Executed, &status, &d.RiskAdjustment, &d.RejectReason, &mc)
	if err != nil {
		return nil, err
	}
	d.Action = domain.Action(action)
	d.Status = domain.DecisionStatus(status)
	if mc.Valid && mc.String != "" {
		snap := &domain.MarketContextSnapshot{}
		if err := json.Unmarshal([]byte(mc.String), snap); err != nil {
			return nil, fmt.Errorf("failed to decode market context of decision %d: %w", d.ID, err)
		}
		d.MarketContext = snap
	}
	return d, nil
}

func encodeMarketContext(snap *domain.MarketContextSnapshot) (sql.NullString, error) {
	if snap == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode market context: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
