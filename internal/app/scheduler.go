package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"aiTradeEngine/internal/ports"
)

// Scheduler runs the engine's periodic jobs until the context is canceled or a shutdown signal arrives.
type Scheduler struct {
	engine          *Engine
	logger          ports.Logger
	monitorInterval time.Duration
	sltpInterval    time.Duration
	pendingInterval time.Duration
}

// NewScheduler creates a scheduler. Zero intervals disable the corresponding job.
func NewScheduler(engine *Engine, logger ports.Logger, monitorInterval, sltpInterval, pendingInterval time.Duration) (*Scheduler, error) {
	if engine == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Scheduler")
	}
	return &Scheduler{
		engine:          engine,
		logger:          logger,
		monitorInterval: monitorInterval,
		sltpInterval:    sltpInterval,
		pendingInterval: pendingInterval,
	}, nil
}

// Start blocks running the jobs. Each job runs on its own ticker and never overlaps itself.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting engine scheduler...", map[string]interface{}{
		"monitorInterval": s.monitorInterval.String(),
		"sltpInterval":    s.sltpInterval.String(),
		"pendingInterval": s.pendingInterval.String(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	s.every(ctx, &wg, "pending", s.pendingInterval, func(ctx context.Context) error {
		_, err := s.engine.ExecutePending(ctx)
		return err
	})
	s.every(ctx, &wg, "auto_close", s.monitorInterval, func(ctx context.Context) error {
		_, err := s.engine.AutoClosePositions(ctx)
		return err
	})
	s.every(ctx, &wg, "sltp", s.sltpInterval, func(ctx context.Context) error {
		_, err := s.engine.MonitorSLTP(ctx)
		return err
	})

	<-ctx.Done()
	s.logger.Info(ctx, "Scheduler context cancelled, waiting for running jobs...")
	wg.Wait()
	s.logger.Info(ctx, "Engine scheduler stopped.")
	return nil
}

func (s *Scheduler) every(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		s.logger.Info(ctx, "Job disabled", map[string]interface{}{"job": name})
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := job(ctx); err != nil {
					s.logger.Error(ctx, err, "Scheduled job failed", map[string]interface{}{"job": name})
				}
			}
		}
	}()
}
