package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"
)

const positionColumns = `
	id, user_id, portfolio_id, decision_id, symbol, type, quantity, entry_price, current_price,
	investment, floating_pnl, pnl_percentage, stop_loss, take_profit, status, opened_at,
	closed_at, close_price, realized_pnl, close_reason`

// CreatePosition saves a new position to the database.
func (r *Repository) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (user_id, portfolio_id, decision_id, symbol, type, quantity, entry_price,
	                       current_price, investment, floating_pnl, pnl_percentage, stop_loss,
	                       take_profit, status, opened_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.q.ExecContext(ctx, query,
		pos.UserID, pos.PortfolioID, nullInt64(pos.DecisionID), pos.Symbol, pos.Type, pos.Quantity,
		pos.EntryPrice, pos.CurrentPrice, pos.Investment, pos.FloatingPnL, pos.PnLPercentage,
		pos.StopLoss, pos.TakeProfit, pos.Status, pos.OpenedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("open %s position on %s for user %d: %w", pos.Type, pos.Symbol, pos.UserID, ports.ErrDuplicatePosition)
		}
		return 0, fmt.Errorf("failed to insert position for %s: %w", pos.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Symbol, err)
	}
	pos.ID = id
	r.logger.Debug(ctx, "Position created", map[string]interface{}{
		"positionID": id,
		"userID":     pos.UserID,
		"symbol":     pos.Symbol,
		"type":       pos.Type,
	})
	return id, nil
}

// UpdatePosition updates an existing position in the database.
func (r *Repository) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions SET
		current_price = ?, floating_pnl = ?, pnl_percentage = ?, stop_loss = ?, take_profit = ?,
		status = ?, closed_at = ?, close_price = ?, realized_pnl = ?, close_reason = ?
	WHERE id = ?`

	var closePrice, realized sql.NullFloat64
	var reason sql.NullString
	if pos.Status == domain.StatusClosed {
		closePrice = sql.NullFloat64{Float64: pos.ClosePrice, Valid: true}
		realized = sql.NullFloat64{Float64: pos.RealizedPnL, Valid: true}
		reason = sql.NullString{String: string(pos.CloseReason), Valid: pos.CloseReason != ""}
	}

	result, err := r.q.ExecContext(ctx, query,
		pos.CurrentPrice, pos.FloatingPnL, pos.PnLPercentage, pos.StopLoss, pos.TakeProfit,
		pos.Status, nullTime(pos.ClosedAt), closePrice, realized, reason, pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w: %w", pos.ID, ports.ErrUpdateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for position update ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d: %w", pos.ID, ports.ErrPositionNotFound)
	}
	return nil
}

// FindPositionByID retrieves a position by its ID.
func (r *Repository) FindPositionByID(ctx context.Context, id int64) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = ?`

	pos, err := scanPosition(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found is not an error
		}
		return nil, fmt.Errorf("failed to query position by ID %d: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return pos, nil
}

// FindOpenPosition retrieves the OPEN position for (user, symbol, type).
func (r *Repository) FindOpenPosition(ctx context.Context, userID int64, symbol string, posType domain.PositionType) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions
	WHERE user_id = ? AND symbol = ? AND type = ? AND status = ?
	LIMIT 1`

	pos, err := scanPosition(r.q.QueryRowContext(ctx, query, userID, symbol, posType, domain.StatusOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open %s position for user %d on %s: %w: %w", posType, userID, symbol, ports.ErrQueryFailed, err)
	}
	return pos, nil
}

// FindOpenPositions retrieves all OPEN positions.
func (r *Repository) FindOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = ? ORDER BY opened_at ASC, id ASC`
	return r.queryPositions(ctx, query, domain.StatusOpen)
}

// FindOpenPositionsByUser retrieves a user's OPEN positions.
func (r *Repository) FindOpenPositionsByUser(ctx context.Context, userID int64) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions WHERE user_id = ? AND status = ? ORDER BY opened_at ASC, id ASC`
	return r.queryPositions(ctx, query, userID, domain.StatusOpen)
}

// FindClosedPositionsByUser retrieves a user's CLOSED positions ordered by close time.
func (r *Repository) FindClosedPositionsByUser(ctx context.Context, userID int64) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions WHERE user_id = ? AND status = ? ORDER BY closed_at ASC, id ASC`
	return r.queryPositions(ctx, query, userID, domain.StatusClosed)
}

// CountOpenPositions counts a user's OPEN positions.
func (r *Repository) CountOpenPositions(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM positions WHERE user_id = ? AND status = ?`
	var count int
	if err := r.q.QueryRowContext(ctx, query, userID, domain.StatusOpen).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open positions for user %d: %w", userID, err)
	}
	return count, nil
}

func (r *Repository) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*domain.Position, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	pos := &domain.Position{}
	var (
		decisionID  sql.NullInt64
		posType     string
		status      string
		closedAt    sql.NullTime
		closePrice  sql.NullFloat64
		realizedPnL sql.NullFloat64
		closeReason sql.NullString
	)

	err := s.Scan(
		&pos.ID, &pos.UserID, &pos.PortfolioID, &decisionID, &pos.Symbol, &posType, &pos.Quantity,
		&pos.EntryPrice, &pos.CurrentPrice, &pos.Investment, &pos.FloatingPnL, &pos.PnLPercentage,
		&pos.StopLoss, &pos.TakeProfit, &status, &pos.OpenedAt,
		&closedAt, &closePrice, &realizedPnL, &closeReason,
	)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}

	pos.DecisionID = decisionID.Int64
	pos.Type = domain.PositionType(posType)
	pos.Status = domain.PositionStatus(status)
	if closedAt.Valid {
		pos.ClosedAt = closedAt.Time
	}
	pos.ClosePrice = closePrice.Float64
	pos.RealizedPnL = realizedPnL.Float64
	pos.CloseReason = domain.CloseReason(closeReason.String)
	return pos, nil
}
