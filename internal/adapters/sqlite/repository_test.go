package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trade-engine-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func seedPortfolio(t *testing.T, repo *Repository, userID int64, balance float64) *domain.Portfolio {
	t.Helper()
	p := &domain.Portfolio{
		UserID:           userID,
		Balance:          balance,
		Equity:           balance,
		InitialBalance:   balance,
		RiskMode:         domain.RiskModerate,
		RiskValuePercent: 1,
		AITradeEnabled:   true,
	}
	_, err := repo.CreatePortfolio(context.Background(), p)
	require.NoError(t, err)
	return p
}

func openPosition(userID, portfolioID int64, symbol string, posType domain.PositionType, investment float64) *domain.Position {
	return &domain.Position{
		UserID:       userID,
		PortfolioID:  portfolioID,
		Symbol:       symbol,
		Type:         posType,
		Quantity:     investment / 100,
		EntryPrice:   100,
		CurrentPrice: 100,
		Investment:   investment,
		StopLoss:     97,
		TakeProfit:   106,
		Status:       domain.StatusOpen,
		OpenedAt:     time.Now(),
	}
}

func TestRepository_CreateAndFindPosition(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Repository, *domain.Portfolio) error
		pos     func(*domain.Portfolio) *domain.Position
		wantErr error
	}{
		{
			name: "valid position",
			pos: func(p *domain.Portfolio) *domain.Position {
				return openPosition(p.UserID, p.ID, "BTCUSDT", domain.Long, 100)
			},
		},
		{
			name: "duplicate open position",
			setup: func(r *Repository, p *domain.Portfolio) error {
				_, err := r.CreatePosition(context.Background(), openPosition(p.UserID, p.ID, "BTCUSDT", domain.Long, 100))
				return err
			},
			pos: func(p *domain.Portfolio) *domain.Position {
				return openPosition(p.UserID, p.ID, "BTCUSDT", domain.Long, 50)
			},
			wantErr: ports.ErrDuplicatePosition,
		},
		{
			name: "opposite side is allowed",
			setup: func(r *Repository, p *domain.Portfolio) error {
				_, err := r.CreatePosition(context.Background(), openPosition(p.UserID, p.ID, "BTCUSDT", domain.Long, 100))
				return err
			},
			pos: func(p *domain.Portfolio) *domain.Position {
				return openPosition(p.UserID, p.ID, "BTCUSDT", domain.Short, 100)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cleanup := setupTestDB(t)
			defer cleanup()
			ctx := context.Background()
			p := seedPortfolio(t, repo, 1, 10000)

			if tt.setup != nil {
				require.NoError(t, tt.setup(repo, p))
			}

			pos := tt.pos(p)
			id, err := repo.CreatePosition(ctx, pos)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Greater(t, id, int64(0))

			found, err := repo.FindPositionByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, pos.Symbol, found.Symbol)
			assert.Equal(t, pos.Type, found.Type)
			assert.Equal(t, pos.Investment, found.Investment)
			assert.Equal(t, domain.StatusOpen, found.Status)
			assert.True(t, found.ClosedAt.IsZero())

			open, err := repo.FindOpenPosition(ctx, p.UserID, pos.Symbol, pos.Type)
			require.NoError(t, err)
			require.NotNil(t, open)
			assert.Equal(t, id, open.ID)
		})
	}
}

func TestRepository_ClosePositionAllowsReopen(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	p := seedPortfolio(t, repo, 1, 10000)

	pos := openPosition(p.UserID, p.ID, "ETHUSDT", domain.Long, 200)
	_, err := repo.CreatePosition(ctx, pos)
	require.NoError(t, err)

	pnl := pos.Close(110, domain.CloseReasonManual, time.Now())
	require.NoError(t, repo.UpdatePosition(ctx, pos))
	assert.InDelta(t, 20.0, pnl, 1e-9)

	closed, err := repo.FindPositionByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, domain.CloseReasonManual, closed.CloseReason)
	assert.InDelta(t, 20.0, closed.RealizedPnL, 1e-9)
	assert.Equal(t, 110.0, closed.ClosePrice)
	assert.False(t, closed.ClosedAt.IsZero())

	_, err = repo.CreatePosition(ctx, openPosition(p.UserID, p.ID, "ETHUSDT", domain.Long, 200))
	assert.NoError(t, err)

	closedList, err := repo.FindClosedPositionsByUser(ctx, p.UserID)
	require.NoError(t, err)
	assert.Len(t, closedList, 1)

	count, err := repo.CountOpenPositions(ctx, p.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRepository_UpdateMissingPosition(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.UpdatePosition(context.Background(), &domain.Position{ID: 999, Status: domain.StatusOpen})
	assert.ErrorIs(t, err, ports.ErrPositionNotFound)

	found, err := repo.FindPositionByID(context.Background(), 999)
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepository_PortfolioBalances(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	p := seedPortfolio(t, repo, 7, 1000)

	_, err := repo.LoadPortfolio(ctx, 8)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = repo.CreatePortfolio(ctx, &domain.Portfolio{UserID: 7})
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	pos := openPosition(p.UserID, p.ID, "BTCUSDT", domain.Long, 300)
	pos.MarkToMarket(110) // +30 floating
	_, err = repo.CreatePosition(ctx, pos)
	require.NoError(t, err)

	require.NoError(t, repo.AddRealizedPnL(ctx, p.UserID, -25))

	loaded, err := repo.RecomputeEquity(ctx, p.UserID)
	require.NoError(t, err)
	assert.InDelta(t, 975.0, loaded.Balance, 1e-9)
	assert.InDelta(t, -25.0, loaded.RealizedPnL, 1e-9)
	assert.InDelta(t, 30.0, loaded.FloatingPnL, 1e-9)
	assert.InDelta(t, 1005.0, loaded.Equity, 1e-9)
	assert.InDelta(t, 300.0, loaded.OpenExposure, 1e-9)
	assert.InDelta(t, 675.0, loaded.AvailableBalance(), 1e-9)

	assert.ErrorIs(t, repo.AddRealizedPnL(ctx, 99, 1), ports.ErrNotFound)

	loaded.Balance = 500
	loaded.Equity = 530
	require.NoError(t, repo.SaveBalances(ctx, loaded))
	reloaded, err := repo.LoadPortfolio(ctx, p.UserID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, reloaded.Balance)
	assert.Equal(t, 530.0, reloaded.Equity)
}

func TestRepository_ListTradingPortfolios(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedPortfolio(t, repo, 1, 1000)
	disabled := &domain.Portfolio{UserID: 2, Balance: 1000, Equity: 1000, AITradeEnabled: false}
	_, err := repo.CreatePortfolio(ctx, disabled)
	require.NoError(t, err)
	broke := &domain.Portfolio{UserID: 3, Balance: 0, Equity: 0, AITradeEnabled: true}
	_, err = repo.CreatePortfolio(ctx, broke)
	require.NoError(t, err)

	list, err := repo.ListTradingPortfolios(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].UserID)
	assert.True(t, list[0].AITradeEnabled)
	assert.Equal(t, domain.RiskModerate, list[0].RiskMode)
}

func TestRepository_WithinTx(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	p := seedPortfolio(t, repo, 1, 1000)

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
			if _, err := tx.CreatePosition(ctx, openPosition(p.UserID, p.ID, "BTCUSDT", domain.Long, 100)); err != nil {
				return err
			}
			if err := tx.AddRealizedPnL(ctx, p.UserID, 50); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		count, err := repo.CountOpenPositions(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		loaded, err := repo.LoadPortfolio(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, 1000.0, loaded.Balance)
	})

	t.Run("commit", func(t *testing.T) {
		err := repo.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
			if _, err := tx.CreatePosition(ctx, openPosition(p.UserID, p.ID, "BTCUSDT", domain.Long, 100)); err != nil {
				return err
			}
			// Nested calls share the outer transaction.
			return tx.(ports.Store).WithinTx(ctx, func(ctx context.Context, inner ports.Repositories) error {
				return inner.AddRealizedPnL(ctx, p.UserID, 50)
			})
		})
		require.NoError(t, err)

		count, err := repo.CountOpenPositions(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		loaded, err := repo.LoadPortfolio(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, 1050.0, loaded.Balance)
	})
}

func TestRepository_TradeHistory(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	pnl := 12.5
	entries := []*domain.TradeHistoryEntry{
		{UserID: 1, DecisionID: 3, PositionID: 1, Symbol: "BTCUSDT", Action: domain.TradeOpen, Type: domain.Long, Quantity: 1, Price: 100, Amount: 100, CreatedAt: base},
		{UserID: 1, PositionID: 1, Symbol: "BTCUSDT", Action: domain.TradeClose, Type: domain.Long, Quantity: 1, Price: 112.5, Amount: 112.5, PnL: &pnl, Notes: "TAKE_PROFIT", CreatedAt: base.Add(time.Minute)},
		{UserID: 2, Symbol: "ETHUSDT", Action: domain.TradeOpen, Type: domain.Short, Quantity: 1, Price: 10, Amount: 10, CreatedAt: base},
	}
	for _, e := range entries {
		_, err := repo.AppendTrade(ctx, e)
		require.NoError(t, err)
	}

	trades, err := repo.FindTradesByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, domain.TradeOpen, trades[0].Action)
	assert.Equal(t, int64(3), trades[0].DecisionID)
	assert.Nil(t, trades[0].PnL)
	assert.Equal(t, domain.TradeClose, trades[1].Action)
	require.NotNil(t, trades[1].PnL)
	assert.Equal(t, 12.5, *trades[1].PnL)
	assert.Equal(t, int64(0), trades[1].DecisionID)
}

func TestRepository_Decisions(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	older := &domain.Decision{Symbol: "BTCUSDT", Action: domain.ActionBuy, Confidence: 80, CreatedAt: time.Now().Add(-10 * time.Minute)}
	newer := &domain.Decision{Symbol: "ETHUSDT", Action: domain.ActionSell, Confidence: 65, CreatedAt: time.Now()}
	for _, d := range []*domain.Decision{newer, older} {
		_, err := repo.CreateDecision(ctx, d)
		require.NoError(t, err)
	}

	pending, err := repo.ListPendingDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, 1.0, pending[0].RiskAdjustment)
	assert.Nil(t, pending[0].MarketContext)

	older.Executed = true
	older.Status = domain.DecisionExecuted
	older.RiskAdjustment = 0.7
	older.MarketContext = &domain.MarketContextSnapshot{
		Regime:         domain.RegimeBull,
		AlignmentScore: 0.8,
		Source:         "market_summary",
		CapturedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.UpdateDecision(ctx, older))

	got, err := repo.GetDecision(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, got.Executed)
	assert.Equal(t, domain.DecisionExecuted, got.Status)
	assert.Equal(t, 0.7, got.RiskAdjustment)
	require.NotNil(t, got.MarketContext)
	assert.Equal(t, domain.RegimeBull, got.MarketContext.Regime)
	assert.Equal(t, 0.8, got.MarketContext.AlignmentScore)

	pending, err = repo.ListPendingDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, newer.ID, pending[0].ID)

	// A finalized decision cannot be finalized again.
	older.Status = domain.DecisionRejected
	older.Executed = false
	assert.ErrorIs(t, repo.UpdateDecision(ctx, older), ports.ErrAlreadyExecuted)
	got, err = repo.GetDecision(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionExecuted, got.Status)
	assert.ErrorIs(t, repo.UpdateDecision(ctx, &domain.Decision{ID: 12345, Status: domain.DecisionExecuted}), ports.ErrNotFound)

	_, err = repo.GetDecision(ctx, 12345)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_ExecutionRecords(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rec, err := repo.FindExecution(ctx, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, repo.RecordExecution(ctx, &domain.ExecutionRecord{DecisionID: 1, UserID: 1, Outcome: domain.OutcomeFailed, Reason: "exchange down"}))
	require.NoError(t, repo.RecordExecution(ctx, &domain.ExecutionRecord{DecisionID: 1, UserID: 1, Outcome: domain.OutcomeSucceeded, PositionID: 4}))

	rec, err = repo.FindExecution(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, int64(4), rec.PositionID)
	assert.Empty(t, rec.Reason)

	// A later SKIPPED or FAILED outcome does not overwrite the success.
	require.NoError(t, repo.RecordExecution(ctx, &domain.ExecutionRecord{DecisionID: 1, UserID: 1, Outcome: domain.OutcomeSkipped, Reason: "duplicate"}))
	require.NoError(t, repo.RecordExecution(ctx, &domain.ExecutionRecord{DecisionID: 1, UserID: 1, Outcome: domain.OutcomeFailed, Reason: "lock"}))
	rec, err = repo.FindExecution(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, int64(4), rec.PositionID)
}

func TestRepository_MarketData(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	snap, err := repo.GetLatestRegime(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, snap)

	now := time.Now()
	_, err = repo.SaveRegime(ctx, &domain.MarketRegimeSnapshot{Symbol: "BTCUSDT", Regime: domain.RegimeBear, RegimeConfidence: 0.6, Volatility24h: 0.02, Timestamp: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = repo.SaveRegime(ctx, &domain.MarketRegimeSnapshot{Symbol: "BTCUSDT", Regime: domain.RegimeBull, RegimeConfidence: 0.85, Volatility24h: 0.015, AnomalyScore: 0.1, Timestamp: now})
	require.NoError(t, err)

	snap, err = repo.GetLatestRegime(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, domain.RegimeBull, snap.Regime)
	assert.Equal(t, 0.85, snap.RegimeConfidence)

	summary, err := repo.GetSummaryForDate(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, summary)

	_, err = repo.SaveSummary(ctx, &domain.MarketSummary{
		Date:              now,
		MarketSentiment:   domain.SentimentBullish,
		MarketHealthScore: 70,
		TrendStrength:     55,
		RegimePercentages: map[domain.Regime]float64{domain.RegimeBull: 65, domain.RegimeVolatile: 10},
	})
	require.NoError(t, err)
	// Same day replaces.
	_, err = repo.SaveSummary(ctx, &domain.MarketSummary{
		Date:              now,
		MarketSentiment:   domain.SentimentBearish,
		MarketHealthScore: 40,
		TrendStrength:     30,
		RegimePercentages: map[domain.Regime]float64{domain.RegimeBear: 70},
	})
	require.NoError(t, err)

	summary, err = repo.GetSummaryForDate(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, domain.SentimentBearish, summary.MarketSentiment)
	assert.Equal(t, 70.0, summary.RegimePercent(domain.RegimeBear))
	assert.Equal(t, 0.0, summary.RegimePercent(domain.RegimeBull))
}
