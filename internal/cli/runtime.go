package cli

import (
	"context"
	"fmt"
	"strings"

	"aiTradeEngine/config"
	"aiTradeEngine/internal/adapters/binanceclient"
	"aiTradeEngine/internal/adapters/lock"
	"aiTradeEngine/internal/adapters/logger"
	"aiTradeEngine/internal/adapters/marketcontext"
	"aiTradeEngine/internal/adapters/notify"
	"aiTradeEngine/internal/adapters/sqlite"
	"aiTradeEngine/internal/app"
	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"
	"aiTradeEngine/internal/risk"
	"aiTradeEngine/internal/validation"

	"github.com/redis/go-redis/v9"
)

// runtime is the wired dependency graph shared by every command.
type runtime struct {
	cfg        *config.Config
	logger     ports.Logger
	repo       *sqlite.Repository
	exchange   *binanceclient.Client
	dispatcher *notify.Dispatcher
	engine     *app.Engine
	closers    []func() error
}

// newRuntime wires config, storage, exchange, locking, notification and the engine.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: appLogger}
	if z, ok := appLogger.(*logger.ZapLogger); ok {
		rt.closers = append(rt.closers, func() error {
			_ = z.Sync()
			return nil
		})
	}

	rt.repo, err = sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database repository: %w", err)
	}
	rt.closers = append(rt.closers, rt.repo.Close)

	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		RateLimit:  cfg.PriceRateLimit,
		Logger:     appLogger,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	rt.exchange = binanceClient

	market, err := marketcontext.New(marketcontext.Config{
		Prices:     binanceClient,
		Market:     rt.repo,
		Logger:     appLogger,
		Timeout:    cfg.PriceTimeout,
		MaxRetries: cfg.PriceMaxRetries,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to initialize market context: %w", err)
	}

	locker, err := rt.newLocker(ctx)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	senders := []notify.Sender{notify.NewLogSender(appLogger)}
	if cfg.NotifyWebhookURL != "" {
		webhook, err := notify.NewWebhookSender(cfg.NotifyWebhookURL, cfg.NotifyTimeout)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to initialize webhook notifier: %w", err)
		}
		senders = append(senders, webhook)
	}
	rt.dispatcher = notify.NewDispatcher(appLogger, cfg.NotifyTimeout, senders...)

	riskManager := risk.NewRiskManager(risk.RiskConfig{
		Bands:              riskBands(cfg.Engine.RiskBands),
		MaxHoldingDuration: cfg.Engine.MaxHoldingDuration,
	}, market)

	validator, err := validation.NewValidator(market, appLogger, validation.Config{
		DecisionTTL:     cfg.Engine.DecisionTTL,
		MinMarketHealth: cfg.Engine.MinMarketHealth,
		MinAlignment:    cfg.Engine.MinAlignment,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to initialize validator: %w", err)
	}

	rt.engine, err = app.NewEngine(rt.repo, market, validator, riskManager, rt.dispatcher, locker, appLogger, app.Config{
		MaxOpenPositions: cfg.Engine.MaxOpenPositions,
		LockTTL:          cfg.LockTTL,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	appLogger.Debug(ctx, "Engine initialized", map[string]interface{}{"db": cfg.DBPath, "redis": cfg.RedisEnabled})
	return rt, nil
}

func (rt *runtime) newLocker(ctx context.Context) (ports.Locker, error) {
	if !rt.cfg.RedisEnabled {
		return lock.NewLocalLock(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rt.cfg.RedisAddr,
		Password: rt.cfg.RedisPassword,
		DB:       rt.cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", rt.cfg.RedisAddr, err)
	}
	redisLock := lock.NewRedisLock(client, "aitrade:lock:")
	rt.closers = append(rt.closers, redisLock.Close)
	return redisLock, nil
}

// Close drains pending notifications and releases resources in reverse order.
func (rt *runtime) Close(ctx context.Context) {
	if rt.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.NotifyTimeout)
		rt.dispatcher.Wait(ctx)
		cancel()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Error(ctx, err, "Error releasing resource")
		}
	}
	rt.closers = nil
}

func riskBands(bands map[string]config.RiskBand) map[domain.RiskMode]risk.Band {
	out := risk.DefaultBands()
	for mode, b := range bands {
		out[domain.RiskMode(strings.ToUpper(mode))] = risk.Band{StopLossPct: b.StopLossPct, TakeProfitPct: b.TakeProfitPct}
	}
	return out
}

// checkExchange pings the exchange once. Sweeps skip symbols without prices, so a failure only warns.
func (rt *runtime) checkExchange(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, rt.cfg.PriceTimeout)
	defer cancel()
	if err := rt.exchange.Ping(pingCtx); err != nil {
		rt.logger.Warn(ctx, "Exchange connectivity check failed, continuing", map[string]interface{}{"error": err.Error()})
		return false
	}
	rt.logger.Info(ctx, "Exchange reachable")
	return true
}
