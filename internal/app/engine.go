// Package app holds the decision execution engine and the position monitor.
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
	"aiTradeEngine/internal/validation"

	"github.com/google/uuid"
)

// Config holds engine settings.
type Config struct {
	MaxOpenPositions int           // Portfolio-wide cap on OPEN positions per user
	LockTTL          time.Duration // Lifetime of a per-user portfolio lock
}

// Engine validates decisions, opens positions for every trading user and closes positions.
// All mutations of a user's portfolio run under that user's lock and inside one store transaction.
type Engine struct {
	store     ports.Store
	market    ports.MarketContextProvider
	validator *validation.Validator
	risk      *risk.RiskManager
	notifier  ports.Notifier
	locker    ports.Locker
	logger    ports.Logger
	cfg       Config
	now       func() time.Time
}

// NewEngine creates a new engine instance.
func NewEngine(
	store ports.Store,
	market ports.MarketContextProvider,
	validator *validation.Validator,
	riskManager *risk.RiskManager,
	notifier ports.Notifier,
	locker ports.Locker,
	logger ports.Logger,
	cfg Config,
) (*Engine, error) {
	if store == nil || market == nil || validator == nil || riskManager == nil || notifier == nil || locker == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine")
	}
	if cfg.MaxOpenPositions <= 0 {
		cfg.MaxOpenPositions = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Engine{
		store:     store,
		market:    market,
		validator: validator,
		risk:      riskManager,
		notifier:  notifier,
		locker:    locker,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// actionHandler executes a validated decision across all trading users.
type actionHandler func(ctx context.Context, d *domain.Decision, adjustment float64, summary *ExecutionSummary) error

func (e *Engine) handlerFor(action domain.Action) (actionHandler, bool) {
	switch action {
	case domain.ActionBuy:
		return e.executeBuy, true
	case domain.ActionSell:
		return e.executeSell, true
	case domain.ActionHold:
		return e.executeHold, true
	default:
		return nil, false
	}
}

// ExecuteDecision processes one pending decision: expiry, validation, then execution for every
// trading user. The decision is latched executed once all users were attempted, whatever their outcome.
// An error is returned only when the decision itself could not be loaded or saved.
// Concurrent calls for the same decision are serialized by the decision lock; all but the first
// return ErrAlreadyExecuted.
func (e *Engine) ExecuteDecision(ctx context.Context, decisionID int64) (*ExecutionSummary, error) {
	defer metrics.ObserveSweep("execute", time.Now())

	var summary *ExecutionSummary
	err := e.withLock(ctx, decisionLockKey(decisionID), func() error {
		var err error
		summary, err = e.executeLocked(ctx, decisionID)
		return err
	})
	return summary, err
}

// executeLocked runs one decision. It must run under the decision lock.
func (e *Engine) executeLocked(ctx context.Context, decisionID int64) (*ExecutionSummary, error) {
	op := "ExecuteDecision"
	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, fmt.Errorf("%s: load decision %d: %w", op, decisionID, err)
	}
	if d.Executed {
		return nil, fmt.Errorf("decision %d: %w", d.ID, ports.ErrAlreadyExecuted)
	}
	if d.Status != domain.DecisionPending {
		return nil, fmt.Errorf("decision %d is %s: %w", d.ID, d.Status, ports.ErrInvalidRequest)
	}

	summary := &ExecutionSummary{DecisionID: d.ID, RunID: uuid.NewString()}
	logFields := map[string]interface{}{"decisionID": d.ID, "symbol": d.Symbol, "action": d.Action, "runID": summary.RunID}

	handler, ok := e.handlerFor(d.Action)
	if !ok {
		return e.finish(ctx, d, summary, domain.DecisionRejected, fmt.Sprintf("unknown action %q", d.Action))
	}

	if reason, expired := e.validator.Expired(d); expired {
		e.logger.Info(ctx, op+": decision expired", logFields)
		return e.finish(ctx, d, summary, domain.DecisionExpired, reason)
	}

	adjustment := 1.0
	if d.Action != domain.ActionHold {
		res := e.validator.Validate(ctx, d)
		d.MarketContext = res.Context
		d.RiskAdjustment = res.RiskAdjustment
		switch {
		case res.Expired:
			return e.finish(ctx, d, summary, domain.DecisionExpired, res.Reason)
		case !res.Valid:
			e.logger.Info(ctx, op+": decision rejected", mergeFields(logFields, map[string]interface{}{"reason": res.Reason}))
			return e.finish(ctx, d, summary, domain.DecisionRejected, res.Reason)
		}
		adjustment = res.RiskAdjustment
		summary.Reason = res.Reason
	}

	if err := handler(ctx, d, adjustment, summary); err != nil {
		// Nothing was latched; the decision stays pending and per-user records make a retry safe.
		e.logger.Error(ctx, err, op+": execution aborted", logFields)
		return summary, fmt.Errorf("%s: decision %d: %w", op, d.ID, err)
	}

	summary, err = e.finish(ctx, d, summary, domain.DecisionExecuted, summary.Reason)
	if err != nil {
		return summary, err
	}
	if d.Action != domain.ActionHold {
		metrics.RecordExecutions(summary.Succeeded, summary.Skipped, summary.Failed)
		e.notifier.Notify(ctx, &domain.Notification{
			Type:   domain.NotifyExecutionSummary,
			Symbol: d.Symbol,
			Action: string(d.Action),
			Reason: fmt.Sprintf("%d/%d succeeded", summary.Succeeded, summary.Total),
			Data: map[string]interface{}{
				"decisionId": d.ID,
				"runId":      summary.RunID,
				"total":      summary.Total,
				"succeeded":  summary.Succeeded,
				"skipped":    summary.Skipped,
				"failed":     summary.Failed,
			},
		})
	}
	e.logger.Info(ctx, op+": decision executed", mergeFields(logFields, map[string]interface{}{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}))
	return summary, nil
}

// ExecutePending runs ExecuteDecision for every pending decision, oldest first.
func (e *Engine) ExecutePending(ctx context.Context) (*PendingSummary, error) {
	op := "ExecutePending"
	decisions, err := e.store.ListPendingDecisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	summary := &PendingSummary{}
	for _, d := range decisions {
		if ctx.Err() != nil {
			break
		}
		res, err := e.ExecuteDecision(ctx, d.ID)
		if errors.Is(err, ports.ErrAlreadyExecuted) {
			e.logger.Debug(ctx, op+": decision finalized by another run", map[string]interface{}{"decisionID": d.ID})
			continue
		}
		summary.Processed++
		if err != nil {
			summary.Failed++
			e.logger.Error(ctx, err, op+": decision not processed", map[string]interface{}{"decisionID": d.ID})
			continue
		}
		switch res.Status {
		case domain.DecisionExecuted:
			summary.Executed++
		case domain.DecisionRejected:
			summary.Rejected++
		case domain.DecisionExpired:
			summary.Expired++
		}
	}
	if summary.Processed > 0 {
		e.logger.Info(ctx, op+": pending decisions processed", map[string]interface{}{
			"processed": summary.Processed,
			"executed":  summary.Executed,
			"rejected":  summary.Rejected,
			"expired":   summary.Expired,
			"failed":    summary.Failed,
		})
	}
	return summary, nil
}

// finish stores the decision's final status. Only EXECUTED latches the executed flag.
func (e *Engine) finish(ctx context.Context, d *domain.Decision, summary *ExecutionSummary, status domain.DecisionStatus, reason string) (*ExecutionSummary, error) {
	d.Status = status
	d.Executed = status == domain.DecisionExecuted
	if status != domain.DecisionExecuted {
		d.RejectReason = reason
	}
	if err := e.store.UpdateDecision(ctx, d); err != nil {
		return summary, fmt.Errorf("failed to save decision %d as %s: %w", d.ID, status, err)
	}
	summary.Status = status
	summary.Reason = reason

	outcome := "executed"
	switch {
	case status == domain.DecisionRejected:
		outcome = "rejected"
	case status == domain.DecisionExpired:
		outcome = "expired"
	case d.Action == domain.ActionHold:
		outcome = "hold"
	}
	metrics.RecordDecision(outcome)
	return summary, nil
}

func (e *Engine) executeBuy(ctx context.Context, d *domain.Decision, adjustment float64, summary *ExecutionSummary) error {
	return e.executeOpen(ctx, d, domain.Long, adjustment, summary)
}

// executeSell always opens a SHORT, flipping an existing LONG first.
func (e *Engine) executeSell(ctx context.Context, d *domain.Decision, adjustment float64, summary *ExecutionSummary) error {
	return e.executeOpen(ctx, d, domain.Short, adjustment, summary)
}

func (e *Engine) executeHold(ctx context.Context, d *domain.Decision, _ float64, summary *ExecutionSummary) error {
	summary.Reason = "hold: no position opened"
	return nil
}

// executeOpen runs the per-user open step for every trading portfolio.
// One user's failure never affects another user.
func (e *Engine) executeOpen(ctx context.Context, d *domain.Decision, posType domain.PositionType, adjustment float64, summary *ExecutionSummary) error {
	op := "executeOpen"

	// Read outside any transaction; the regime is shared by all users of this decision.
	regime, err := e.market.GetLatestRegime(ctx, d.Symbol)
	if err != nil {
		e.logger.Warn(ctx, op+": regime unavailable, sizing without it", map[string]interface{}{"symbol": d.Symbol, "error": err.Error()})
		regime = nil
	}

	portfolios, err := e.store.ListTradingPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("list trading portfolios: %w", err)
	}

	for _, p := range portfolios {
		summary.Total++
		o := e.openForUser(ctx, d, p.UserID, posType, regime, adjustment)
		switch o.outcome {
		case domain.OutcomeSucceeded:
			summary.Succeeded++
		case domain.OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return nil
}

// userOutcome is the result of one user's open step.
type userOutcome struct {
	outcome  domain.ExecutionOutcome
	position *domain.Position
	flipped  *domain.Position
	reason   string
}

func (e *Engine) openForUser(ctx context.Context, d *domain.Decision, userID int64, posType domain.PositionType, regime *domain.MarketRegimeSnapshot, adjustment float64) userOutcome {
	op := "openForUser"
	fields := map[string]interface{}{"decisionID": d.ID, "userID": userID, "symbol": d.Symbol, "type": posType}

	var o userOutcome
	err := e.withUserLock(ctx, userID, func() error {
		var lockedErr error
		o, lockedErr = e.openLocked(ctx, d, userID, posType, regime, adjustment)
		return lockedErr
	})

	switch {
	case err == nil && o.outcome == domain.OutcomeSkipped:
		e.logger.Info(ctx, op+": skipped", mergeFields(fields, map[string]interface{}{"reason": o.reason}))
	case err == nil:
		e.logger.Info(ctx, op+": position opened", mergeFields(fields, map[string]interface{}{
			"positionID": o.position.ID,
			"quantity":   o.position.Quantity,
			"entryPrice": o.position.EntryPrice,
			"investment": o.position.Investment,
		}))
	case ports.IsPolicySkip(err):
		// Skips detected before the transaction (price unavailable).
		o = userOutcome{outcome: domain.OutcomeSkipped, reason: err.Error()}
		e.recordExecution(ctx, d.ID, userID, o)
		e.logger.Info(ctx, op+": skipped", mergeFields(fields, map[string]interface{}{"reason": o.reason}))
		return o
	default:
		o = userOutcome{outcome: domain.OutcomeFailed, reason: err.Error()}
		e.recordExecution(ctx, d.ID, userID, o)
		e.logger.Error(ctx, err, op+": execution failed", fields)
		e.notifier.Notify(ctx, &domain.Notification{
			Type:   domain.NotifyTradeError,
			UserID: userID,
			Symbol: d.Symbol,
			Action: string(d.Action),
			Reason: err.Error(),
			Data:   map[string]interface{}{"decisionId": d.ID},
		})
		return o
	}

	// Committed: notify.
	if o.flipped != nil {
		metrics.RecordClose(string(o.flipped.CloseReason), o.flipped.RealizedPnL)
		e.notifyClosed(ctx, o.flipped)
	}
	if o.position != nil {
		e.notifier.Notify(ctx, &domain.Notification{
			Type:   domain.NotifyTradeExecuted,
			UserID: userID,
			Symbol: d.Symbol,
			Action: string(d.Action),
			Reason: fmt.Sprintf("opened %s", posType),
			Data: map[string]interface{}{
				"decisionId": d.ID,
				"positionId": o.position.ID,
				"quantity":   o.position.Quantity,
				"entryPrice": o.position.EntryPrice,
				"investment": o.position.Investment,
				"stopLoss":   o.position.StopLoss,
				"takeProfit": o.position.TakeProfit,
			},
		})
	}
	return o
}

// openLocked fetches prices, then opens the position in one transaction. It must run under the user's lock.
// Policy skips found inside the transaction commit it, so a completed flip close is kept.
func (e *Engine) openLocked(ctx context.Context, d *domain.Decision, userID int64, posType domain.PositionType, regime *domain.MarketRegimeSnapshot, adjustment float64) (userOutcome, error) {
	rec, err := e.store.FindExecution(ctx, d.ID, userID)
	if err != nil {
		return userOutcome{}, fmt.Errorf("execution record: %w", err)
	}
	if rec != nil && rec.Outcome == domain.OutcomeSucceeded {
		return userOutcome{outcome: domain.OutcomeSkipped, reason: "already executed"}, nil
	}

	opposite, err := e.store.FindOpenPosition(ctx, userID, d.Symbol, posType.Opposite())
	if err != nil {
		return userOutcome{}, fmt.Errorf("find opposite position: %w", err)
	}

	entryPrice, err := e.market.GetCurrentPrice(ctx, d.Symbol)
	if err != nil {
		return userOutcome{}, fmt.Errorf("current price: %w", err)
	}
	if entryPrice <= 0 {
		return userOutcome{}, fmt.Errorf("current price %.8f: %w", entryPrice, ports.ErrDataUnavailable)
	}

	var flipPrice float64
	if opposite != nil {
		flipPrice = e.closePrice(ctx, opposite, entryPrice)
	}

	var o userOutcome
	err = e.store.WithinTx(ctx, func(ctx context.Context, repo ports.Repositories) error {
		o = userOutcome{}
		if opposite != nil {
			pos, err := repo.FindPositionByID(ctx, opposite.ID)
			if err != nil {
				return err
			}
			if pos != nil && pos.IsOpen() {
				if err := e.closeInTx(ctx, repo, pos, flipPrice, domain.CloseReasonFlip, d.ID); err != nil {
					return fmt.Errorf("close opposite position %d: %w", pos.ID, err)
				}
				o.flipped = pos
			}
		}

		pos, skip, err := e.openInTx(ctx, repo, d, userID, posType, regime, adjustment, entryPrice)
		if err != nil {
			return err
		}
		if skip != nil {
			o.outcome = domain.OutcomeSkipped
			o.reason = skip.Error()
			return repo.RecordExecution(ctx, &domain.ExecutionRecord{DecisionID: d.ID, UserID: userID, Outcome: domain.OutcomeSkipped, Reason: o.reason})
		}
		o.outcome = domain.OutcomeSucceeded
		o.position = pos
		return repo.RecordExecution(ctx, &domain.ExecutionRecord{DecisionID: d.ID, UserID: userID, Outcome: domain.OutcomeSucceeded, PositionID: pos.ID})
	})
	if err != nil {
		return userOutcome{}, err
	}
	return o, nil
}

// openInTx applies the open policy and creates the position. A non-nil skip is a policy no-op.
func (e *Engine) openInTx(ctx context.Context, repo ports.Repositories, d *domain.Decision, userID int64, posType domain.PositionType, regime *domain.MarketRegimeSnapshot, adjustment float64, price float64) (pos *domain.Position, skip error, err error) {
	existing, err := repo.FindOpenPosition(ctx, userID, d.Symbol, posType)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%s %s already open as position %d: %w", d.Symbol, posType, existing.ID, ports.ErrDuplicatePosition), nil
	}

	count, err := repo.CountOpenPositions(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if count >= e.cfg.MaxOpenPositions {
		return nil, fmt.Errorf("%d open positions: %w", count, ports.ErrPositionLimitExceeded), nil
	}

	portfolio, err := repo.LoadPortfolio(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !portfolio.CanTrade() {
		return nil, fmt.Errorf("user %d (equity %.2f): %w", userID, portfolio.Equity, ports.ErrTradingDisabled), nil
	}
	size := e.risk.SizeWithRegime(portfolio, d.Confidence, regime, adjustment)
	if !portfolio.CanOpenPosition(size.Amount) {
		return nil, fmt.Errorf("risk amount %.2f, available %.2f (vetoed=%t): %w",
			size.Amount, portfolio.AvailableBalance(), size.Vetoed, ports.ErrInsufficientFunds), nil
	}

	quantity := size.Amount / price
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity %.8f: %w", quantity, ports.ErrInsufficientFunds), nil
	}
	stopLoss, takeProfit := risk.StopLossTakeProfit(price, posType, regime)

	pos = &domain.Position{
		UserID:       userID,
		PortfolioID:  portfolio.ID,
		DecisionID:   d.ID,
		Symbol:       d.Symbol,
		Type:         posType,
		Quantity:     quantity,
		EntryPrice:   price,
		CurrentPrice: price,
		Investment:   size.Amount,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		Status:       domain.StatusOpen,
		OpenedAt:     e.now().UTC(),
	}
	if _, err := repo.CreatePosition(ctx, pos); err != nil {
		if errors.Is(err, ports.ErrDuplicatePosition) {
			return nil, err, nil
		}
		return nil, nil, err
	}
	if _, err := repo.AppendTrade(ctx, &domain.TradeHistoryEntry{
		UserID:     userID,
		DecisionID: d.ID,
		PositionID: pos.ID,
		Symbol:     d.Symbol,
		Action:     domain.TradeOpen,
		Type:       posType,
		Quantity:   quantity,
		Price:      price,
		Amount:     size.Amount,
		Notes:      fmt.Sprintf("confidence %.0f, multiplier %.3f, adjustment %.2f", d.Confidence, size.Multiplier, size.Adjustment),
		CreatedAt:  pos.OpenedAt,
	}); err != nil {
		return nil, nil, err
	}
	if _, err := repo.RecomputeEquity(ctx, userID); err != nil {
		return nil, nil, err
	}
	return pos, nil, nil
}

// recordExecution stores a per-user outcome outside any transaction.
func (e *Engine) recordExecution(ctx context.Context, decisionID, userID int64, o userOutcome) {
	rec := &domain.ExecutionRecord{DecisionID: decisionID, UserID: userID, Outcome: o.outcome, Reason: o.reason}
	if err := e.store.RecordExecution(ctx, rec); err != nil {
		e.logger.Error(ctx, err, "Failed to record execution outcome", map[string]interface{}{
			"decisionID": decisionID,
			"userID":     userID,
			"outcome":    o.outcome,
		})
	}
}

func portfolioLockKey(userID int64) string {
	return fmt.Sprintf("portfolio:%d", userID)
}

func decisionLockKey(decisionID int64) string {
	return fmt.Sprintf("decision:%d", decisionID)
}

// withUserLock runs fn while holding the user's portfolio lock.
func (e *Engine) withUserLock(ctx context.Context, userID int64, fn func() error) error {
	return e.withLock(ctx, portfolioLockKey(userID), fn)
}

// withLock runs fn while holding key. A decision lock may be held while taking portfolio locks, never the reverse.
func (e *Engine) withLock(ctx context.Context, key string, fn func() error) error {
	if err := e.locker.Lock(ctx, key, e.cfg.LockTTL); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer func() {
		if err := e.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			e.logger.Warn(ctx, "Failed to release portfolio lock", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}()
	return fn()
}

func mergeFields(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
