package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market Data Errors
	ErrDataUnavailable     = errors.New("market data unavailable")
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")

	// Execution Policy Errors (policy no-ops, not failures)
	ErrInsufficientFunds     = errors.New("insufficient available balance for operation")
	ErrDuplicatePosition     = errors.New("open position already exists for symbol and type")
	ErrPositionLimitExceeded = errors.New("open position limit reached")
	ErrTradingDisabled       = errors.New("AI trading disabled or no equity")

	// Decision Errors
	ErrValidationRejected = errors.New("decision rejected by market validation")
	ErrDecisionExpired    = errors.New("decision expired")
	ErrAlreadyExecuted    = errors.New("decision already executed")

	// Position Errors
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosed   = errors.New("position already closed")

	// Database Specific Errors
	ErrDuplicateEntry    = errors.New("database record already exists")
	ErrDBConnection      = errors.New("database connection error")
	ErrQueryFailed       = errors.New("database query failed")
	ErrUpdateFailed      = errors.New("database update failed")
	ErrTransactionFailed = errors.New("database transaction failed")
	ErrLockNotAcquired   = errors.New("lock could not be acquired")
)

// IsPolicySkip reports whether err is an execution policy no-op that should be counted as skipped
// rather than failed.
func IsPolicySkip(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicatePosition) ||
		errors.Is(err, ErrPositionLimitExceeded) ||
		errors.Is(err, ErrTradingDisabled) ||
		errors.Is(err, ErrDataUnavailable)
}
