package ports

import (
	"context"
	"time"

	"aiTradeEngine/internal/domain"
)

// PortfolioRepository is the Portfolio Store consumed by the engine.
type PortfolioRepository interface {
	// CreatePortfolio saves a new portfolio and returns its assigned ID.
	CreatePortfolio(ctx context.Context, p *domain.Portfolio) (int64, error)
	// LoadPortfolio retrieves a user's portfolio with OpenExposure populated.
	// Returns ErrNotFound if the user has no portfolio.
	LoadPortfolio(ctx context.Context, userID int64) (*domain.Portfolio, error)
	// ListTradingPortfolios returns portfolios with AI trading enabled and positive equity.
	ListTradingPortfolios(ctx context.Context) ([]*domain.Portfolio, error)
	// AddRealizedPnL atomically credits (or debits) realized PnL to the balance.
	AddRealizedPnL(ctx context.Context, userID int64, amount float64) error
	// RecomputeEquity sets equity = balance + sum(floating PnL over open positions).
	RecomputeEquity(ctx context.Context, userID int64) (*domain.Portfolio, error)
	// SaveBalances overwrites the derived balance fields of a portfolio.
	SaveBalances(ctx context.Context, p *domain.Portfolio) error
}

// PositionRepository defines the interface for storing and retrieving positions.
type PositionRepository interface {
	// CreatePosition saves a new position and returns its assigned ID.
	// Returns ErrDuplicatePosition if an OPEN position already exists for (user, symbol, type).
	CreatePosition(ctx context.Context, pos *domain.Position) (int64, error)
	// UpdatePosition modifies an existing position.
	UpdatePosition(ctx context.Context, pos *domain.Position) error
	// FindPositionByID retrieves a position by ID. Returns nil, nil if not found.
	FindPositionByID(ctx context.Context, id int64) (*domain.Position, error)
	// FindOpenPosition retrieves the OPEN position for (user, symbol, type). Returns nil, nil if none.
	FindOpenPosition(ctx context.Context, userID int64, symbol string, posType domain.PositionType) (*domain.Position, error)
	// FindOpenPositions retrieves all OPEN positions ordered by opening time.
	FindOpenPositions(ctx context.Context) ([]*domain.Position, error)
	// FindOpenPositionsByUser retrieves a user's OPEN positions.
	FindOpenPositionsByUser(ctx context.Context, userID int64) ([]*domain.Position, error)
	// FindClosedPositionsByUser retrieves a user's CLOSED positions ordered by close time.
	FindClosedPositionsByUser(ctx context.Context, userID int64) ([]*domain.Position, error)
	// CountOpenPositions counts a user's OPEN positions.
	CountOpenPositions(ctx context.Context, userID int64) (int, error)
}

// TradeRepository defines the append-only trade history.
type TradeRepository interface {
	// AppendTrade saves a new history entry and returns its assigned ID.
	AppendTrade(ctx context.Context, entry *domain.TradeHistoryEntry) (int64, error)
	// FindTradesByUser retrieves a user's history ordered by creation time ascending.
	FindTradesByUser(ctx context.Context, userID int64) ([]*domain.TradeHistoryEntry, error)
}

// DecisionRepository stores upstream decisions.
type DecisionRepository interface {
	CreateDecision(ctx context.Context, d *domain.Decision) (int64, error)
	// GetDecision returns ErrNotFound if the decision does not exist.
	GetDecision(ctx context.Context, id int64) (*domain.Decision, error)
	// UpdateDecision finalizes a PENDING decision. It returns ErrAlreadyExecuted when the decision
	// is no longer pending and ErrNotFound when it does not exist.
	UpdateDecision(ctx context.Context, d *domain.Decision) error
	// ListPendingDecisions returns non-executed PENDING decisions, oldest first.
	ListPendingDecisions(ctx context.Context) ([]*domain.Decision, error)
}

// ExecutionRepository stores per-(decision, user) execution records.
type ExecutionRepository interface {
	// FindExecution returns nil, nil if no record exists.
	FindExecution(ctx context.Context, decisionID, userID int64) (*domain.ExecutionRecord, error)
	// RecordExecution inserts or replaces the record for (decision, user). SUCCEEDED records are final.
	RecordExecution(ctx context.Context, rec *domain.ExecutionRecord) error
}

// MarketDataRepository holds regime snapshots and daily summaries written by the analytics collaborator.
type MarketDataRepository interface {
	SaveRegime(ctx context.Context, snap *domain.MarketRegimeSnapshot) (int64, error)
	// GetLatestRegime returns the latest snapshot by timestamp, nil, nil if none.
	GetLatestRegime(ctx context.Context, symbol string) (*domain.MarketRegimeSnapshot, error)
	SaveSummary(ctx context.Context, s *domain.MarketSummary) (int64, error)
	// GetSummaryForDate returns the summary for the calendar day of date, nil, nil if none.
	GetSummaryForDate(ctx context.Context, date time.Time) (*domain.MarketSummary, error)
}

// Repositories groups every repository that participates in a unit of work.
type Repositories interface {
	PortfolioRepository
	PositionRepository
	TradeRepository
	DecisionRepository
	ExecutionRepository
	MarketDataRepository
}

// TxFunc runs inside a transaction. Returning an error rolls the transaction back.
type TxFunc func(ctx context.Context, repo Repositories) error

// Store is the transactional persistence boundary of the engine.
type Store interface {
	Repositories
	// WithinTx runs fn inside one serialized transaction. Errors returned by fn are passed
	// through unchanged after rollback; commit failures wrap ErrTransactionFailed.
	WithinTx(ctx context.Context, fn TxFunc) error
}
