package app

import (
	"context"
	"fmt"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"

	"github.com/shopspring/decimal"
)

// RepairPortfolioData recomputes a user's balance and equity from the trade history and open positions:
// balance = initial + realized PnL of CLOSE entries, equity = balance + floating PnL, both floored at 0.
// Repeated calls without new trades produce the same result.
func (e *Engine) RepairPortfolioData(ctx context.Context, userID int64) (*RepairResult, error) {
	op := "RepairPortfolioData"
	var res *RepairResult

	err := e.withUserLock(ctx, userID, func() error {
		return e.store.WithinTx(ctx, func(ctx context.Context, repo ports.Repositories) error {
			p, err := repo.LoadPortfolio(ctx, userID)
			if err != nil {
				return err
			}
			trades, err := repo.FindTradesByUser(ctx, userID)
			if err != nil {
				return err
			}
			open, err := repo.FindOpenPositionsByUser(ctx, userID)
			if err != nil {
				return err
			}

			realized := decimal.Zero
			for _, t := range trades {
				if t.Action == domain.TradeClose && t.PnL != nil {
					realized = realized.Add(decimal.NewFromFloat(*t.PnL))
				}
			}
			floating := decimal.Zero
			for _, pos := range open {
				floating = floating.Add(decimal.NewFromFloat(pos.FloatingPnL))
			}

			balance := decimal.Max(decimal.Zero, decimal.NewFromFloat(p.InitialBalance).Add(realized))
			equity := decimal.Max(decimal.Zero, balance.Add(floating))

			oldBalance, oldEquity := p.Balance, p.Equity
			p.Balance = balance.InexactFloat64()
			p.Equity = equity.InexactFloat64()
			p.RealizedPnL = realized.InexactFloat64()
			p.FloatingPnL = floating.InexactFloat64()
			if err := repo.SaveBalances(ctx, p); err != nil {
				return err
			}

			res = &RepairResult{
				Success:     true,
				Balance:     p.Balance,
				Equity:      p.Equity,
				RealizedPnL: p.RealizedPnL,
				Message: fmt.Sprintf("balance %.2f -> %.2f, equity %.2f -> %.2f from %d trades and %d open positions",
					oldBalance, p.Balance, oldEquity, p.Equity, len(trades), len(open)),
			}
			return nil
		})
	})
	if err != nil {
		e.logger.Error(ctx, err, op+": repair failed", map[string]interface{}{"userID": userID})
		return &RepairResult{Message: err.Error()}, fmt.Errorf("%s: user %d: %w", op, userID, err)
	}

	e.logger.Info(ctx, op+": portfolio repaired", map[string]interface{}{
		"userID":  userID,
		"balance": res.Balance,
		"equity":  res.Equity,
	})
	return res, nil
}
