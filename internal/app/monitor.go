package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/metrics"
	"aiTradeEngine/internal/ports"
	"aiTradeEngine/internal/risk"
)

// closeRule decides whether an open position should be closed at price.
type closeRule func(pos *domain.Position, price float64, mode domain.RiskMode, now time.Time) (domain.CloseReason, bool)

// UpdateAllFloatingPnL marks every open position to market and recomputes each affected equity.
// Returns the number of positions updated; positions without a price keep their last values.
func (e *Engine) UpdateAllFloatingPnL(ctx context.Context) (int, error) {
	op := "UpdateAllFloatingPnL"
	defer metrics.ObserveSweep("floating_pnl", time.Now())

	positions, err := e.store.FindOpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	metrics.SetOpenPositions(len(positions))
	prices := e.currentPrices(ctx, positions)

	updated := 0
	userIDs, byUser := groupByUser(positions)
	for _, userID := range userIDs {
		var n int
		err := e.withUserLock(ctx, userID, func() error {
			var err error
			n, err = e.refreshFloating(ctx, userID, byUser[userID], prices)
			return err
		})
		if err != nil {
			e.logger.Error(ctx, err, op+": refresh failed", map[string]interface{}{"userID": userID})
			continue
		}
		updated += n
	}
	e.logger.Debug(ctx, op+": done", map[string]interface{}{"open": len(positions), "updated": updated})
	return updated, nil
}

// AutoClosePositions closes positions on stored SL/TP, the portfolio risk-mode band or the holding time limit.
// Positions that stay open get their floating PnL refreshed.
func (e *Engine) AutoClosePositions(ctx context.Context) (*CloseSummary, error) {
	defer metrics.ObserveSweep("auto_close", time.Now())
	return e.sweep(ctx, "AutoClosePositions", e.risk.EvaluateClose, true)
}

// MonitorSLTP is the high-frequency check of stored stop-loss and take-profit levels only.
// Returns the number of positions closed.
func (e *Engine) MonitorSLTP(ctx context.Context) (int, error) {
	defer metrics.ObserveSweep("sltp", time.Now())
	manual := func(pos *domain.Position, price float64, _ domain.RiskMode, _ time.Time) (domain.CloseReason, bool) {
		return risk.ManualTrigger(pos, price)
	}
	summary, err := e.sweep(ctx, "MonitorSLTP", manual, false)
	if err != nil {
		return 0, err
	}
	return summary.Closed, nil
}

func (e *Engine) sweep(ctx context.Context, op string, rule closeRule, refresh bool) (*CloseSummary, error) {
	positions, err := e.store.FindOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	prices := e.currentPrices(ctx, positions)
	summary := &CloseSummary{}

	userIDs, byUser := groupByUser(positions)
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		var closed []*domain.Position
		err := e.withUserLock(ctx, userID, func() error {
			mode := domain.RiskModerate
			if p, err := e.store.LoadPortfolio(ctx, userID); err == nil {
				mode = p.RiskMode
			} else {
				e.logger.Warn(ctx, op+": portfolio unavailable, using MODERATE band", map[string]interface{}{"userID": userID, "error": err.Error()})
			}

			var remaining []*domain.Position
			for _, pos := range byUser[userID] {
				summary.Checked++
				price, ok := prices[pos.Symbol]
				if !ok {
					summary.Skipped++
					continue
				}
				reason, shouldClose := rule(pos, price, mode, e.now())
				if !shouldClose {
					remaining = append(remaining, pos)
					continue
				}
				c, err := e.closeTx(ctx, pos.ID, e.closePrice(ctx, pos, price), reason)
				switch {
				case errors.Is(err, ports.ErrPositionClosed), errors.Is(err, ports.ErrPositionNotFound):
					summary.Skipped++
				case err != nil:
					summary.Failed++
					e.logger.Error(ctx, err, op+": close failed", map[string]interface{}{"positionID": pos.ID, "reason": reason})
					e.notifyCloseError(ctx, pos, err)
				default:
					summary.Closed++
					summary.TotalPnL += c.RealizedPnL
					closed = append(closed, c)
				}
			}

			if refresh && len(remaining) > 0 {
				if _, err := e.refreshFloating(ctx, userID, remaining, prices); err != nil {
					e.logger.Error(ctx, err, op+": floating refresh failed", map[string]interface{}{"userID": userID})
				}
			}
			return nil
		})
		if err != nil {
			summary.Failed += len(byUser[userID])
			e.logger.Error(ctx, err, op+": user skipped", map[string]interface{}{"userID": userID})
			continue
		}
		for _, c := range closed {
			e.logger.Info(ctx, op+": position closed", map[string]interface{}{
				"positionID": c.ID,
				"userID":     c.UserID,
				"symbol":     c.Symbol,
				"reason":     c.CloseReason,
				"pnl":        c.RealizedPnL,
			})
			e.notifyClosed(ctx, c)
		}
	}

	if summary.Closed > 0 || summary.Failed > 0 {
		e.logger.Info(ctx, op+": done", map[string]interface{}{
			"checked":  summary.Checked,
			"closed":   summary.Closed,
			"skipped":  summary.Skipped,
			"failed":   summary.Failed,
			"totalPnL": summary.TotalPnL,
		})
	}
	return summary, nil
}

// refreshFloating marks the given positions to market and recomputes equity in one transaction.
// Must run under the user's lock.
func (e *Engine) refreshFloating(ctx context.Context, userID int64, positions []*domain.Position, prices map[string]float64) (int, error) {
	updated := 0
	err := e.store.WithinTx(ctx, func(ctx context.Context, repo ports.Repositories) error {
		updated = 0
		for _, p := range positions {
			price, ok := prices[p.Symbol]
			if !ok {
				continue
			}
			pos, err := repo.FindPositionByID(ctx, p.ID)
			if err != nil {
				return err
			}
			if pos == nil || !pos.IsOpen() {
				continue
			}
			pos.MarkToMarket(price)
			if err := repo.UpdatePosition(ctx, pos); err != nil {
				return err
			}
			updated++
		}
		_, err := repo.RecomputeEquity(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// groupByUser groups positions by owner, keeping first-seen user order.
func groupByUser(positions []*domain.Position) ([]int64, map[int64][]*domain.Position) {
	var order []int64
	byUser := make(map[int64][]*domain.Position)
	for _, pos := range positions {
		if _, ok := byUser[pos.UserID]; !ok {
			order = append(order, pos.UserID)
		}
		byUser[pos.UserID] = append(byUser[pos.UserID], pos)
	}
	return order, byUser
}
