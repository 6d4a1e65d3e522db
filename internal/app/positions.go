package app

import (
	"context"
	"errors"
	"fmt"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/metrics"
	"aiTradeEngine/internal/ports"
)

// closeInTx closes pos at price and books the realized PnL. The only path that changes a balance.
func (e *Engine) closeInTx(ctx context.Context, repo ports.Repositories, pos *domain.Position, price float64, reason domain.CloseReason, decisionID int64) error {
	pnl := pos.Close(price, reason, e.now().UTC())
	if err := repo.UpdatePosition(ctx, pos); err != nil {
		return err
	}
	if _, err := repo.AppendTrade(ctx, &domain.TradeHistoryEntry{
		UserID:     pos.UserID,
		DecisionID: decisionID,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Action:     domain.TradeClose,
		Type:       pos.Type,
		Quantity:   pos.Quantity,
		Price:      price,
		Amount:     price * pos.Quantity,
		PnL:        &pnl,
		Notes:      string(reason),
		CreatedAt:  pos.ClosedAt,
	}); err != nil {
		return err
	}
	if err := repo.AddRealizedPnL(ctx, pos.UserID, pnl); err != nil {
		return err
	}
	_, err := repo.RecomputeEquity(ctx, pos.UserID)
	return err
}

// closeTx reloads the position inside its own transaction and closes it.
// Returns ErrPositionNotFound or ErrPositionClosed when it is no longer open.
func (e *Engine) closeTx(ctx context.Context, positionID int64, price float64, reason domain.CloseReason) (*domain.Position, error) {
	var closed *domain.Position
	err := e.store.WithinTx(ctx, func(ctx context.Context, repo ports.Repositories) error {
		pos, err := repo.FindPositionByID(ctx, positionID)
		if err != nil {
			return err
		}
		if pos == nil {
			return fmt.Errorf("position %d: %w", positionID, ports.ErrPositionNotFound)
		}
		if !pos.IsOpen() {
			return fmt.Errorf("position %d: %w", positionID, ports.ErrPositionClosed)
		}
		if err := e.closeInTx(ctx, repo, pos, price, reason, pos.DecisionID); err != nil {
			return err
		}
		closed = pos
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordClose(string(reason), closed.RealizedPnL)
	return closed, nil
}

// closePrice prefers the side of the book a close would hit: bid for LONG, ask for SHORT.
func (e *Engine) closePrice(ctx context.Context, pos *domain.Position, fallback float64) float64 {
	var (
		price float64
		err   error
	)
	if pos.Type == domain.Short {
		price, err = e.market.GetAskPrice(ctx, pos.Symbol)
	} else {
		price, err = e.market.GetBidPrice(ctx, pos.Symbol)
	}
	if err != nil || price <= 0 {
		e.logger.Debug(ctx, "Book price unavailable, closing at current price", map[string]interface{}{
			"positionID": pos.ID,
			"symbol":     pos.Symbol,
			"fallback":   fallback,
		})
		return fallback
	}
	return price
}

func (e *Engine) notifyClosed(ctx context.Context, pos *domain.Position) {
	pnl := pos.RealizedPnL
	e.notifier.Notify(ctx, &domain.Notification{
		Type:   domain.NotifyPositionClosed,
		UserID: pos.UserID,
		Symbol: pos.Symbol,
		Action: string(pos.Type),
		Reason: string(pos.CloseReason),
		PnL:    &pnl,
		Data: map[string]interface{}{
			"positionId":    pos.ID,
			"closePrice":    pos.ClosePrice,
			"pnlPercentage": pos.PnLPercentage,
			"holding":       pos.HoldingDuration(e.now()).String(),
		},
	})
}

func (e *Engine) notifyCloseError(ctx context.Context, pos *domain.Position, err error) {
	e.notifier.Notify(ctx, &domain.Notification{
		Type:   domain.NotifyTradeError,
		UserID: pos.UserID,
		Symbol: pos.Symbol,
		Action: "CLOSE",
		Reason: err.Error(),
		Data:   map[string]interface{}{"positionId": pos.ID},
	})
}

// ClosePositionManually closes one position at the current market price.
// When userID is set the position must belong to that user.
func (e *Engine) ClosePositionManually(ctx context.Context, positionID int64, userID *int64, reason string) (*ManualCloseResult, error) {
	op := "ClosePositionManually"
	fail := func(err error) (*ManualCloseResult, error) {
		return &ManualCloseResult{Message: err.Error()}, err
	}

	pos, err := e.store.FindPositionByID(ctx, positionID)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", op, err))
	}
	if pos == nil {
		return fail(fmt.Errorf("position %d: %w", positionID, ports.ErrPositionNotFound))
	}
	if userID != nil && *userID != pos.UserID {
		return fail(fmt.Errorf("position %d does not belong to user %d: %w", positionID, *userID, ports.ErrPermissionDenied))
	}
	if !pos.IsOpen() {
		return fail(fmt.Errorf("position %d: %w", positionID, ports.ErrPositionClosed))
	}

	closeReason := domain.CloseReason(reason)
	if closeReason == "" {
		closeReason = domain.CloseReasonManual
	}

	var closed *domain.Position
	err = e.withUserLock(ctx, pos.UserID, func() error {
		current, err := e.market.GetCurrentPrice(ctx, pos.Symbol)
		if err != nil {
			return err
		}
		closed, err = e.closeTx(ctx, pos.ID, e.closePrice(ctx, pos, current), closeReason)
		return err
	})
	if err != nil {
		e.logger.Error(ctx, err, op+": close failed", map[string]interface{}{"positionID": positionID})
		if !errors.Is(err, ports.ErrPositionClosed) && !errors.Is(err, ports.ErrDataUnavailable) {
			e.notifyCloseError(ctx, pos, err)
		}
		return fail(err)
	}

	e.notifyClosed(ctx, closed)
	e.logger.Info(ctx, op+": position closed", map[string]interface{}{
		"positionID": closed.ID,
		"userID":     closed.UserID,
		"closePrice": closed.ClosePrice,
		"pnl":        closed.RealizedPnL,
		"reason":     closeReason,
	})
	return &ManualCloseResult{
		Success:    true,
		PnL:        closed.RealizedPnL,
		ClosePrice: closed.ClosePrice,
		Message:    fmt.Sprintf("closed %s %s at %.4f, pnl %.2f", closed.Symbol, closed.Type, closed.ClosePrice, closed.RealizedPnL),
	}, nil
}

// CloseAllPositions closes every open position of a user. Positions without a price are skipped.
func (e *Engine) CloseAllPositions(ctx context.Context, userID int64, reason string) (*CloseSummary, error) {
	op := "CloseAllPositions"
	positions, err := e.store.FindOpenPositionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	closeReason := domain.CloseReason(reason)
	if closeReason == "" {
		closeReason = domain.CloseReasonManual
	}

	summary := &CloseSummary{}
	prices := e.currentPrices(ctx, positions)
	var closed []*domain.Position
	err = e.withUserLock(ctx, userID, func() error {
		for _, pos := range positions {
			summary.Checked++
			price, ok := prices[pos.Symbol]
			if !ok {
				summary.Skipped++
				continue
			}
			c, err := e.closeTx(ctx, pos.ID, e.closePrice(ctx, pos, price), closeReason)
			switch {
			case errors.Is(err, ports.ErrPositionClosed), errors.Is(err, ports.ErrPositionNotFound):
				summary.Skipped++
			case err != nil:
				summary.Failed++
				e.logger.Error(ctx, err, op+": close failed", map[string]interface{}{"positionID": pos.ID})
				e.notifyCloseError(ctx, pos, err)
			default:
				summary.Closed++
				summary.TotalPnL += c.RealizedPnL
				closed = append(closed, c)
			}
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("%s: %w", op, err)
	}

	for _, c := range closed {
		e.notifyClosed(ctx, c)
	}
	e.logger.Info(ctx, op+": done", map[string]interface{}{
		"userID":   userID,
		"closed":   summary.Closed,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
		"totalPnL": summary.TotalPnL,
	})
	return summary, nil
}

// currentPrices fetches one price per distinct symbol. Symbols without a price are absent from the map.
func (e *Engine) currentPrices(ctx context.Context, positions []*domain.Position) map[string]float64 {
	prices := make(map[string]float64)
	failed := make(map[string]bool)
	for _, pos := range positions {
		if _, ok := prices[pos.Symbol]; ok || failed[pos.Symbol] {
			continue
		}
		price, err := e.market.GetCurrentPrice(ctx, pos.Symbol)
		if err != nil {
			failed[pos.Symbol] = true
			e.logger.Warn(ctx, "Price unavailable, skipping symbol", map[string]interface{}{"symbol": pos.Symbol, "error": err.Error()})
			continue
		}
		prices[pos.Symbol] = price
	}
	return prices
}
