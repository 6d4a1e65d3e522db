package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"
)

const portfolioColumns = `
	p.id, p.user_id, p.balance, p.equity, p.initial_balance, p.realized_pnl, p.floating_pnl,
	p.risk_mode, p.risk_value_percent, p.ai_trade_enabled, p.updated_at,
	COALESCE((SELECT SUM(x.investment) FROM positions x WHERE x.user_id = p.user_id AND x.status = 'OPEN'), 0)`

// CreatePortfolio saves a new portfolio and returns its assigned ID.
func (r *Repository) CreatePortfolio(ctx context.Context, p *domain.Portfolio) (int64, error) {
	const query = `
	INSERT INTO portfolios (user_id, balance, equity, initial_balance, realized_pnl, floating_pnl,
	                        risk_mode, risk_value_percent, ai_trade_enabled, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if p.RiskMode == "" {
		p.RiskMode = domain.RiskModerate
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	result, err := r.q.ExecContext(ctx, query,
		p.UserID, p.Balance, p.Equity, p.InitialBalance, p.RealizedPnL, p.FloatingPnL,
		p.RiskMode, p.RiskValuePercent, p.AITradeEnabled, p.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("portfolio for user %d: %w", p.UserID, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert portfolio for user %d: %w", p.UserID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for portfolio of user %d: %w", p.UserID, err)
	}
	p.ID = id
	r.logger.Debug(ctx, "Portfolio created", map[string]interface{}{"portfolioID": id, "userID": p.UserID})
	return id, nil
}

// LoadPortfolio retrieves a user's portfolio with OpenExposure populated.
func (r *Repository) LoadPortfolio(ctx context.Context, userID int64) (*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios p WHERE p.user_id = ?`

	p, err := scanPortfolio(r.q.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("portfolio for user %d: %w", userID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query portfolio for user %d: %w: %w", userID, ports.ErrQueryFailed, err)
	}
	return p, nil
}

// ListTradingPortfolios returns portfolios with AI trading enabled and positive equity.
func (r *Repository) ListTradingPortfolios(ctx context.Context) ([]*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + `
	FROM portfolios p
	WHERE p.ai_trade_enabled = 1 AND p.equity > 0
	ORDER BY p.user_id`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading portfolios: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	portfolios := make([]*domain.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio during ListTradingPortfolios: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio rows: %w", err)
	}
	return portfolios, nil
}

// AddRealizedPnL atomically credits (or debits) realized PnL to the balance.
func (r *Repository) AddRealizedPnL(ctx context.Context, userID int64, amount float64) error {
	const query = `
	UPDATE portfolios
	SET balance = balance + ?, realized_pnl = realized_pnl + ?, updated_at = ?
	WHERE user_id = ?`

	result, err := r.q.ExecContext(ctx, query, amount, amount, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to add realized pnl for user %d: %w: %w", userID, ports.ErrUpdateFailed, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected for realized pnl of user %d: %w", userID, err)
	} else if n == 0 {
		return fmt.Errorf("portfolio for user %d: %w", userID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Realized PnL applied", map[string]interface{}{"userID": userID, "amount": amount})
	return nil
}

// RecomputeEquity sets equity = balance + sum(floating PnL over open positions).
func (r *Repository) RecomputeEquity(ctx context.Context, userID int64) (*domain.Portfolio, error) {
	const sumQuery = `SELECT COALESCE(SUM(floating_pnl), 0) FROM positions WHERE user_id = ? AND status = ?`
	var floating float64
	if err := r.q.QueryRowContext(ctx, sumQuery, userID, domain.StatusOpen).Scan(&floating); err != nil {
		return nil, fmt.Errorf("failed to sum floating pnl for user %d: %w", userID, err)
	}

	const updateQuery = `
	UPDATE portfolios SET floating_pnl = ?, equity = balance + ?, updated_at = ?
	WHERE user_id = ?`
	result, err := r.q.ExecContext(ctx, updateQuery, floating, floating, time.Now().UTC(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute equity for user %d: %w: %w", userID, ports.ErrUpdateFailed, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to get rows affected for equity of user %d: %w", userID, err)
	} else if n == 0 {
		return nil, fmt.Errorf("portfolio for user %d: %w", userID, ports.ErrNotFound)
	}
	return r.LoadPortfolio(ctx, userID)
}

// SaveBalances overwrites the derived balance fields of a portfolio.
func (r *Repository) SaveBalances(ctx context.Context, p *domain.Portfolio) error {
	const query = `
	UPDATE portfolios
	SET balance = ?, equity = ?, realized_pnl = ?, floating_pnl = ?, updated_at = ?
	WHERE user_id = ?`

	p.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query, p.Balance, p.Equity, p.RealizedPnL, p.FloatingPnL, p.UpdatedAt, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to save balances for user %d: %w: %w", p.UserID, ports.ErrUpdateFailed, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected for balances of user %d: %w", p.UserID, err)
	} else if n == 0 {
		return fmt.Errorf("portfolio for user %d: %w", p.UserID, ports.ErrNotFound)
	}
	return nil
}

// scanPortfolio scans a row into a domain.Portfolio struct.
func scanPortfolio(s scanner) (*domain.Portfolio, error) {
	p := &domain.Portfolio{}
	var riskMode string
	err := s.Scan(
		&p.ID, &p.UserID, &p.Balance, &p.Equity, &p.InitialBalance, &p.RealizedPnL, &p.FloatingPnL,
		&riskMode, &p.RiskValuePercent, &p.AITradeEnabled, &p.UpdatedAt, &p.OpenExposure)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.RiskMode = domain.RiskMode(riskMode)
	return p, nil
}
