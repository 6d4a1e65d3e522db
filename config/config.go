package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"aiTradeEngine/internal/adapters/logger"
	"aiTradeEngine/internal/ports"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (public market data works without keys)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Price fetching
	PriceTimeout    time.Duration
	PriceMaxRetries int
	PriceRateLimit  float64 // Requests per second against the exchange

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text" or "json"

	// Locking
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	// Notifications
	NotifyWebhookURL string
	NotifyTimeout    time.Duration

	// Serving
	MetricsAddr     string
	MonitorInterval time.Duration
	SLTPInterval    time.Duration
	PendingInterval time.Duration

	// Engine tuning, optionally overlaid from ENGINE_CONFIG_FILE
	EngineFile string
	Engine     EngineConfig
}

// EngineConfig holds the execution and monitoring thresholds.
type EngineConfig struct {
	DecisionTTL        time.Duration       `yaml:"decision_ttl"`
	MaxOpenPositions   int                 `yaml:"max_open_positions"`
	MaxHoldingDuration time.Duration       `yaml:"max_holding_duration"`
	MinMarketHealth    float64             `yaml:"min_market_health"`
	MinAlignment       float64             `yaml:"min_alignment"`
	RiskBands          map[string]RiskBand `yaml:"risk_bands"`
}

// RiskBand is a pair of pnl-percentage close thresholds for one risk mode.
type RiskBand struct {
	StopLossPct   float64 `yaml:"stop_loss_pct"`   // Negative, e.g. -3
	TakeProfitPct float64 `yaml:"take_profit_pct"` // Positive, e.g. 6
}

// DefaultEngineConfig returns the built-in engine thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DecisionTTL:        30 * time.Minute,
		MaxOpenPositions:   10,
		MaxHoldingDuration: 24 * time.Hour,
		MinMarketHealth:    30,
		MinAlignment:       0.3,
		RiskBands: map[string]RiskBand{
			"CONSERVATIVE": {StopLossPct: -2, TakeProfitPct: 4},
			"MODERATE":     {StopLossPct: -3, TakeProfitPct: 6},
			"AGGRESSIVE":   {StopLossPct: -5, TakeProfitPct: 10},
		},
	}
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}

	// Price fetching
	timeoutSeconds, err := getEnvAsIntRequired("PRICE_TIMEOUT_SECONDS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_TIMEOUT_SECONDS: %v", err))
	} else if timeoutSeconds <= 0 {
		errs = append(errs, "PRICE_TIMEOUT_SECONDS must be positive")
	}
	cfg.PriceTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.PriceMaxRetries, err = getEnvAsIntRequired("PRICE_MAX_RETRIES", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_MAX_RETRIES: %v", err))
	} else if cfg.PriceMaxRetries < 0 {
		errs = append(errs, "PRICE_MAX_RETRIES cannot be negative")
	}

	cfg.PriceRateLimit, err = getEnvAsFloatRequired("PRICE_RATE_LIMIT", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_RATE_LIMIT: %v", err))
	} else if cfg.PriceRateLimit <= 0 {
		errs = append(errs, "PRICE_RATE_LIMIT must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_engine.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be 'text' or 'json'")
	}

	// Locking
	cfg.RedisEnabled = getEnvAsBool("REDIS_ENABLED", false)
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)
	if cfg.RedisEnabled && cfg.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR must be set when REDIS_ENABLED is true")
	}
	lockTTLSeconds := getEnvAsInt("LOCK_TTL_SECONDS", 30)
	if lockTTLSeconds <= 0 {
		errs = append(errs, "LOCK_TTL_SECONDS must be positive")
	}
	cfg.LockTTL = time.Duration(lockTTLSeconds) * time.Second

	// Notifications
	cfg.NotifyWebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")
	notifyTimeoutSeconds := getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 10)
	if notifyTimeoutSeconds <= 0 {
		errs = append(errs, "NOTIFY_TIMEOUT_SECONDS must be positive")
	}
	cfg.NotifyTimeout = time.Duration(notifyTimeoutSeconds) * time.Second

	// Serving
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")
	cfg.MonitorInterval = time.Duration(getEnvAsInt("MONITOR_INTERVAL_SECONDS", 60)) * time.Second
	cfg.SLTPInterval = time.Duration(getEnvAsInt("SLTP_INTERVAL_SECONDS", 10)) * time.Second
	cfg.PendingInterval = time.Duration(getEnvAsInt("PENDING_INTERVAL_SECONDS", 30)) * time.Second
	if cfg.MonitorInterval <= 0 || cfg.SLTPInterval <= 0 || cfg.PendingInterval <= 0 {
		errs = append(errs, "MONITOR_INTERVAL_SECONDS, SLTP_INTERVAL_SECONDS and PENDING_INTERVAL_SECONDS must be positive")
	}

	// Engine tuning
	cfg.EngineFile = getEnv("ENGINE_CONFIG_FILE", "")
	cfg.Engine, err = LoadEngineConfig(cfg.EngineFile)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// LoadEngineConfig returns the defaults overlaid with the YAML file at path, if any.
func LoadEngineConfig(path string) (EngineConfig, error) {
	ec := DefaultEngineConfig()
	if path == "" {
		return ec, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ec, fmt.Errorf("failed to read engine config '%s': %w", path, err)
	}

	overlay := EngineConfig{}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return ec, fmt.Errorf("failed to parse engine config '%s': %w", path, err)
	}

	if overlay.DecisionTTL != 0 {
		ec.DecisionTTL = overlay.DecisionTTL
	}
	if overlay.MaxOpenPositions != 0 {
		ec.MaxOpenPositions = overlay.MaxOpenPositions
	}
	if overlay.MaxHoldingDuration != 0 {
		ec.MaxHoldingDuration = overlay.MaxHoldingDuration
	}
	if overlay.MinMarketHealth != 0 {
		ec.MinMarketHealth = overlay.MinMarketHealth
	}
	if overlay.MinAlignment != 0 {
		ec.MinAlignment = overlay.MinAlignment
	}
	for mode, band := range overlay.RiskBands {
		ec.RiskBands[strings.ToUpper(mode)] = band
	}

	if err := ec.Validate(); err != nil {
		return ec, fmt.Errorf("invalid engine config '%s': %w", path, err)
	}
	return ec, nil
}

// Validate checks the engine thresholds for consistency.
func (ec EngineConfig) Validate() error {
	var errs []string
	if ec.DecisionTTL <= 0 {
		errs = append(errs, "decision_ttl must be positive")
	}
	if ec.MaxOpenPositions <= 0 {
		errs = append(errs, "max_open_positions must be positive")
	}
	if ec.MaxHoldingDuration <= 0 {
		errs = append(errs, "max_holding_duration must be positive")
	}
	if ec.MinMarketHealth < 0 || ec.MinMarketHealth > 100 {
		errs = append(errs, "min_market_health must be between 0 and 100")
	}
	if ec.MinAlignment < 0 || ec.MinAlignment > 1 {
		errs = append(errs, "min_alignment must be between 0 and 1")
	}
	for mode, band := range ec.RiskBands {
		if band.StopLossPct >= 0 || band.TakeProfitPct <= 0 {
			errs = append(errs, fmt.Sprintf("risk band %s needs stop_loss_pct < 0 < take_profit_pct", mode))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
