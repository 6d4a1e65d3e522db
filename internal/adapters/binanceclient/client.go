package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"aiTradeEngine/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	defaultRateLimit = 20 // requests per second
)

// Client implements ports.PriceSource using the go-binance futures REST API.
type Client struct {
	futuresClient *futures.Client
	limiter       *rate.Limiter
	logger        ports.Logger
}

var _ ports.PriceSource = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string  // Overrides the production/testnet URL when set
	RateLimit  float64 // Requests per second, burst is twice the rate
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Debug(context.Background(), "APIKey or SecretKey is empty. Client will only use public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	return &Client{
		futuresClient: client,
		limiter:       rate.NewLimiter(rate.Limit(limit), int(limit*2)+1),
		logger:        cfg.Logger,
	}, nil
}

// wait blocks until the rate limiter admits one more request.
func (c *Client) wait(ctx context.Context, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter wait: %w: %w", operation, ports.ErrRateLimited, err)
	}
	return nil
}

// handleError translates common Binance API errors into standardized ports errors.
// Every returned error also wraps ports.ErrDataUnavailable so callers can skip the affected symbol.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1121: // Invalid symbol
			mappedErr = ports.ErrInvalidRequest
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106:
			mappedErr = ports.ErrInvalidRequest
		case -1000, -1001, -1007, -1008: // Unknown / disconnected / backend timeout / server busy
			mappedErr = ports.ErrExchangeUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Warn(ctx, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrDataUnavailable, mappedErr, err)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var kind error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		kind = ports.ErrContextCanceled
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		kind = ports.ErrConnectionFailed
	default:
		kind = ports.ErrUnknown
	}

	c.logger.Warn(ctx, fmt.Sprintf("%s failed", operation), fields)
	return fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrDataUnavailable, kind, err)
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	if err := c.wait(ctx, op); err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetBookTicker retrieves the best bid and ask for a given symbol.
func (c *Client) GetBookTicker(ctx context.Context, symbol string) (float64, float64, error) {
	op := "GetBookTicker"
	if err := c.wait(ctx, op); err != nil {
		return 0, 0, c.handleError(ctx, err, op)
	}
	books, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, c.handleError(ctx, err, op)
	}
	if len(books) == 0 {
		err := fmt.Errorf("no book ticker returned for symbol %s", symbol)
		return 0, 0, c.handleError(ctx, err, op)
	}

	bid, err := strconv.ParseFloat(books[0].BidPrice, 64)
	if err != nil {
		return 0, 0, c.handleError(ctx, fmt.Errorf("could not parse bid '%s': %w", books[0].BidPrice, err), op)
	}
	ask, err := strconv.ParseFloat(books[0].AskPrice, 64)
	if err != nil {
		return 0, 0, c.handleError(ctx, fmt.Errorf("could not parse ask '%s': %w", books[0].AskPrice, err), op)
	}
	return bid, ask, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.wait(ctx, op); err != nil {
		return c.handleError(ctx, err, op)
	}
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}
