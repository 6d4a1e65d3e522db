package risk

import (
	"time"

	"aiTradeEngine/internal/domain"
)

// ManualTrigger reports whether price crosses the position's stored stop-loss or take-profit.
// Unset levels (0) never trigger.
func ManualTrigger(pos *domain.Position, price float64) (domain.CloseReason, bool) {
	if pos.Type == domain.Short {
		if pos.StopLoss > 0 && price >= pos.StopLoss {
			return domain.CloseReasonStopLoss, true
		}
		if pos.TakeProfit > 0 && price <= pos.TakeProfit {
			return domain.CloseReasonTakeProfit, true
		}
		return "", false
	}
	if pos.StopLoss > 0 && price <= pos.StopLoss {
		return domain.CloseReasonStopLoss, true
	}
	if pos.TakeProfit > 0 && price >= pos.TakeProfit {
		return domain.CloseReasonTakeProfit, true
	}
	return "", false
}

// EvaluateClose decides whether an open position should be closed at price.
// Precedence: stored SL/TP, then the portfolio risk-mode band on pnl%, then the holding time limit.
func (r *RiskManager) EvaluateClose(pos *domain.Position, price float64, mode domain.RiskMode, now time.Time) (domain.CloseReason, bool) {
	if reason, ok := ManualTrigger(pos, price); ok {
		return reason, true
	}

	if pos.Investment > 0 {
		pnlPct := pos.PnLAt(price) / pos.Investment * 100
		band := r.Band(mode)
		if pnlPct <= band.StopLossPct {
			return domain.CloseReasonRiskStopLoss, true
		}
		if pnlPct >= band.TakeProfitPct {
			return domain.CloseReasonRiskTakeProfit, true
		}
	}

	if pos.HoldingDuration(now) >= r.config.MaxHoldingDuration {
		return domain.CloseReasonTimeLimit, true
	}
	return "", false
}
