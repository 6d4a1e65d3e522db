package ports

import (
	"context"

	"aiTradeEngine/internal/domain"
)

// MarketContextProvider supplies prices and regime context to the engine.
type MarketContextProvider interface {
	// GetCurrentPrice returns the last traded price or an error wrapping ErrDataUnavailable.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	// GetBidPrice returns the best bid or an error wrapping ErrDataUnavailable.
	GetBidPrice(ctx context.Context, symbol string) (float64, error)
	// GetAskPrice returns the best ask or an error wrapping ErrDataUnavailable.
	GetAskPrice(ctx context.Context, symbol string) (float64, error)
	// GetLatestRegime returns nil, nil when no snapshot exists for the symbol.
	GetLatestRegime(ctx context.Context, symbol string) (*domain.MarketRegimeSnapshot, error)
	// GetTodaysSummary returns nil, nil when no summary exists for the current date.
	GetTodaysSummary(ctx context.Context) (*domain.MarketSummary, error)
}

// PriceSource is the exchange-facing part of the market context.
type PriceSource interface {
	// GetTickerPrice retrieves the last ticker price for a given symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	// GetBookTicker retrieves the best bid and ask for a given symbol.
	GetBookTicker(ctx context.Context, symbol string) (bid float64, ask float64, err error)
}
