package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"
)

// AppendTrade saves a new trade history entry.
func (r *Repository) AppendTrade(ctx context.Context, entry *domain.TradeHistoryEntry) (int64, error) {
	const query = `
	INSERT INTO trade_history (user_id, decision_id, position_id, symbol, action, type, quantity,
	                           price, amount, pnl, notes, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var pnl sql.NullFloat64
	if entry.PnL != nil {
		pnl = sql.NullFloat64{Float64: *entry.PnL, Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query,
		entry.UserID, nullInt64(entry.DecisionID), nullInt64(entry.PositionID), entry.Symbol,
		entry.Action, entry.Type, entry.Quantity, entry.Price, entry.Amount, pnl, entry.Notes,
		entry.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s trade for %s: %w", entry.Action, entry.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", entry.Symbol, err)
	}
	entry.ID = id
	return id, nil
}

// FindTradesByUser retrieves a user's trade history ordered by creation time.
func (r *Repository) FindTradesByUser(ctx context.Context, userID int64) ([]*domain.TradeHistoryEntry, error) {
	const query = `
	SELECT id, user_id, decision_id, position_id, symbol, action, type, quantity, price, amount,
	       pnl, notes, created_at
	FROM trade_history
	WHERE user_id = ?
	ORDER BY created_at ASC, id ASC`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for user %d: %w: %w", userID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.TradeHistoryEntry, 0)
	for rows.Next() {
		t := &domain.TradeHistoryEntry{}
		var (
			decisionID, positionID sql.NullInt64
			action, posType        string
			pnl                    sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &decisionID, &positionID, &t.Symbol, &action, &posType,
			&t.Quantity, &t.Price, &t.Amount, &pnl, &t.Notes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		t.DecisionID = decisionID.Int64
		t.PositionID = positionID.Int64
		t.Action = domain.TradeAction(action)
		t.Type = domain.PositionType(posType)
		if pnl.Valid {
			v := pnl.Float64
			t.PnL = &v
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}
