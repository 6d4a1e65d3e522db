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

// SaveRegime stores a regime snapshot.
func (r *Repository) SaveRegime(ctx context.Context, snap *domain.MarketRegimeSnapshot) (int64, error) {
	const query = `
	INSERT INTO market_regimes (symbol, regime, regime_confidence, volatility_24h, anomaly_score, timestamp)
	VALUES (?, ?, ?, ?, ?, ?)`

	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	result, err := r.q.ExecContext(ctx, query, snap.Symbol, snap.Regime, snap.RegimeConfidence,
		snap.Volatility24h, snap.AnomalyScore, snap.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert regime snapshot for %s: %w", snap.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for regime %s: %w", snap.Symbol, err)
	}
	snap.ID = id
	return id, nil
}

// GetLatestRegime returns the most recent snapshot for symbol.
func (r *Repository) GetLatestRegime(ctx context.Context, symbol string) (*domain.MarketRegimeSnapshot, error) {
	const query = `
	SELECT id, symbol, regime, regime_confidence, volatility_24h, anomaly_score, timestamp
	FROM market_regimes
	WHERE symbol = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1`

	snap := &domain.MarketRegimeSnapshot{}
	var regime string
	err := r.q.QueryRowContext(ctx, query, symbol).Scan(&snap.ID, &snap.Symbol, &regime,
		&snap.RegimeConfidence, &snap.Volatility24h, &snap.AnomalyScore, &snap.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest regime for %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	snap.Regime = domain.Regime(regime)
	return snap, nil
}

// SaveSummary stores or replaces the summary for its calendar day.
func (r *Repository) SaveSummary(ctx context.Context, s *domain.MarketSummary) (int64, error) {
	const query = `
	INSERT INTO market_summaries (date, market_sentiment, market_health_score, trend_strength, regime_percentages)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (date) DO UPDATE SET
		market_sentiment = excluded.market_sentiment,
		market_health_score = excluded.market_health_score,
		trend_strength = excluded.trend_strength,
		regime_percentages = excluded.regime_percentages`

	pct := s.RegimePercentages
	if pct == nil {
		pct = map[domain.Regime]float64{}
	}
	b, err := json.Marshal(pct)
	if err != nil {
		return 0, fmt.Errorf("failed to encode regime percentages: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, query, dateKey(s.Date), s.MarketSentiment, s.MarketHealthScore,
		s.TrendStrength, string(b)); err != nil {
		return 0, fmt.Errorf("failed to save market summary for %s: %w", dateKey(s.Date), err)
	}

	var id int64
	if err := r.q.QueryRowContext(ctx, `SELECT id FROM market_summaries WHERE date = ?`, dateKey(s.Date)).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back market summary for %s: %w", dateKey(s.Date), err)
	}
	s.ID = id
	return id, nil
}

// GetSummaryForDate returns the summary for the calendar day of date.
func (r *Repository) GetSummaryForDate(ctx context.Context, date time.Time) (*domain.MarketSummary, error) {
	const query = `
	SELECT id, date, market_sentiment, market_health_score, trend_strength, regime_percentages
	FROM market_summaries WHERE date = ?`

	s := &domain.MarketSummary{}
	var day, sentiment, pct string
	err := r.q.QueryRowContext(ctx, query, dateKey(date)).Scan(&s.ID, &day, &sentiment,
		&s.MarketHealthScore, &s.TrendStrength, &pct)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query market summary for %s: %w: %w", dateKey(date), ports.ErrQueryFailed, err)
	}
	if s.Date, err = time.Parse("2006-01-02", day); err != nil {
		return nil, fmt.Errorf("invalid market summary date %q: %w", day, err)
	}
	s.MarketSentiment = domain.Sentiment(sentiment)
	s.RegimePercentages = make(map[domain.Regime]float64)
	if err := json.Unmarshal([]byte(pct), &s.RegimePercentages); err != nil {
		return nil, fmt.Errorf("failed to decode regime percentages for %s: %w", day, err)
	}
	return s, nil
}
