// Package marketcontext combines exchange prices with stored regime analytics
// into the market context consumed by the engine.
package marketcontext

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"

	"github.com/jpillora/backoff"
)

// Provider implements ports.MarketContextProvider.
type Provider struct {
	prices     ports.PriceSource
	market     ports.MarketDataRepository
	logger     ports.Logger
	timeout    time.Duration
	maxRetries int
	minBackoff time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

var _ ports.MarketContextProvider = (*Provider)(nil)

// Config holds the provider settings.
type Config struct {
	Prices     ports.PriceSource
	Market     ports.MarketDataRepository
	Logger     ports.Logger
	Timeout    time.Duration // Per attempt
	MaxRetries int           // Retries after the first attempt
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Now        func() time.Time
}

// New creates a market context provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Prices == nil {
		return nil, errors.New("price source cannot be nil")
	}
	if cfg.Market == nil {
		return nil, errors.New("market data repository cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	p := &Provider{
		prices:     cfg.Prices,
		market:     cfg.Market,
		logger:     cfg.Logger,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
		now:        cfg.Now,
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if p.minBackoff <= 0 {
		p.minBackoff = 200 * time.Millisecond
	}
	if p.maxBackoff < p.minBackoff {
		p.maxBackoff = 2 * time.Second
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// GetCurrentPrice returns the last traded price.
func (p *Provider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := p.retry(ctx, "GetCurrentPrice", symbol, func(callCtx context.Context) error {
		v, err := p.prices.GetTickerPrice(callCtx, symbol)
		if err != nil {
			return err
		}
		price = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %.8f for %s: %w", price, symbol, ports.ErrDataUnavailable)
	}
	return price, nil
}

// GetBidPrice returns the best bid.
func (p *Provider) GetBidPrice(ctx context.Context, symbol string) (float64, error) {
	bid, _, err := p.bookTicker(ctx, "GetBidPrice", symbol)
	if err != nil {
		return 0, err
	}
	if bid <= 0 {
		return 0, fmt.Errorf("non-positive bid for %s: %w", symbol, ports.ErrDataUnavailable)
	}
	return bid, nil
}

// GetAskPrice returns the best ask.
func (p *Provider) GetAskPrice(ctx context.Context, symbol string) (float64, error) {
	_, ask, err := p.bookTicker(ctx, "GetAskPrice", symbol)
	if err != nil {
		return 0, err
	}
	if ask <= 0 {
		return 0, fmt.Errorf("non-positive ask for %s: %w", symbol, ports.ErrDataUnavailable)
	}
	return ask, nil
}

// GetLatestRegime returns the latest regime snapshot for symbol, nil if none has been recorded.
func (p *Provider) GetLatestRegime(ctx context.Context, symbol string) (*domain.MarketRegimeSnapshot, error) {
	snap, err := p.market.GetLatestRegime(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("latest regime for %s: %w: %w", symbol, ports.ErrDataUnavailable, err)
	}
	return snap, nil
}

// GetTodaysSummary returns the market summary for the current date, nil if none exists.
func (p *Provider) GetTodaysSummary(ctx context.Context) (*domain.MarketSummary, error) {
	summary, err := p.market.GetSummaryForDate(ctx, p.now())
	if err != nil {
		return nil, fmt.Errorf("today's market summary: %w: %w", ports.ErrDataUnavailable, err)
	}
	return summary, nil
}

func (p *Provider) bookTicker(ctx context.Context, op, symbol string) (float64, float64, error) {
	var bid, ask float64
	err := p.retry(ctx, op, symbol, func(callCtx context.Context) error {
		b, a, err := p.prices.GetBookTicker(callCtx, symbol)
		if err != nil {
			return err
		}
		bid, ask = b, a
		return nil
	})
	return bid, ask, err
}

// retry runs fn with a per-attempt timeout and bounded exponential backoff between attempts.
// The final error always wraps ports.ErrDataUnavailable.
func (p *Provider) retry(ctx context.Context, op, symbol string, fn func(context.Context) error) error {
	b := &backoff.Backoff{
		Min:    p.minBackoff,
		Max:    p.maxBackoff,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		lastErr = fn(callCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(lastErr, ports.ErrInvalidRequest) {
			break
		}
		if attempt == p.maxRetries {
			break
		}

		wait := b.Duration()
		p.logger.Debug(ctx, op+": retrying after error", map[string]interface{}{
			"symbol":  symbol,
			"attempt": attempt + 1,
			"wait":    wait.String(),
			"error":   lastErr.Error(),
		})
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s %s: %w: %w", op, symbol, ports.ErrDataUnavailable, ctx.Err())
		case <-time.After(wait):
		}
	}

	if errors.Is(lastErr, ports.ErrDataUnavailable) {
		return fmt.Errorf("%s %s: %w", op, symbol, lastErr)
	}
	return fmt.Errorf("%s %s: %w: %w", op, symbol, ports.ErrDataUnavailable, lastErr)
}
