package analytics

import (
	"testing"
	"time"

	"aiTradeEngine/internal/domain"
)

func closedPosition(symbol string, pnl float64, opened, closed time.Time, reason domain.CloseReason) *domain.Position {
	return &domain.Position{
		Symbol:      symbol,
		Type:        domain.Long,
		Status:      domain.StatusClosed,
		RealizedPnL: pnl,
		OpenedAt:    opened,
		ClosedAt:    closed,
		CloseReason: reason,
	}
}

func TestAnalyzePerformance(t *testing.T) {
	initialBalance := 10000.0
	base := time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC)
	positions := []*domain.Position{
		// Out of order on purpose; analysis sorts by close time.
		closedPosition("ETHUSDT", -500, base.Add(24*time.Hour), base.Add(30*time.Hour), domain.CloseReasonStopLoss),
		closedPosition("BTCUSDT", 1000, base, base.Add(2*time.Hour), domain.CloseReasonTakeProfit),
		closedPosition("BTCUSDT", 250, base.Add(72*time.Hour), base.Add(76*time.Hour), domain.CloseReasonTimeLimit),
		{Symbol: "SOLUSDT", Status: domain.StatusOpen, FloatingPnL: 999},
	}

	metrics := AnalyzePerformance(positions, initialBalance)

	if metrics.TotalTrades != 3 {
		t.Errorf("Expected 3 total trades, got %d", metrics.TotalTrades)
	}
	if metrics.WinningTrades != 2 || metrics.LosingTrades != 1 {
		t.Errorf("Expected 2 wins and 1 loss, got %d/%d", metrics.WinningTrades, metrics.LosingTrades)
	}
	if metrics.TotalProfit != 750 {
		t.Errorf("Expected 750 total profit, got %f", metrics.TotalProfit)
	}
	if metrics.FinalBalance != 10750 {
		t.Errorf("Expected final balance 10750, got %f", metrics.FinalBalance)
	}
	if metrics.ProfitFactor != 2.5 {
		t.Errorf("Expected 2.5 profit factor, got %f", metrics.ProfitFactor)
	}
	if metrics.AverageWin != 625 {
		t.Errorf("Expected 625 average win, got %f", metrics.AverageWin)
	}
	if metrics.AverageLoss != -500 {
		t.Errorf("Expected -500 average loss, got %f", metrics.AverageLoss)
	}
	if metrics.RiskRewardRatio != 1.25 {
		t.Errorf("Expected 1.25 risk reward ratio, got %f", metrics.RiskRewardRatio)
	}
	if metrics.MaxConsecutiveWins != 1 || metrics.MaxConsecutiveLosses != 1 {
		t.Errorf("Expected 1/1 consecutive wins/losses, got %d/%d", metrics.MaxConsecutiveWins, metrics.MaxConsecutiveLosses)
	}
	if metrics.AverageHoldDuration != 4*time.Hour {
		t.Errorf("Expected 4h average hold, got %s", metrics.AverageHoldDuration)
	}

	wantDrawdown := 500.0 / 11000.0
	if diff := metrics.MaxDrawdown - wantDrawdown; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("Expected max drawdown %f, got %f", wantDrawdown, metrics.MaxDrawdown)
	}
	if len(metrics.Drawdowns) != 1 {
		t.Fatalf("Expected 1 drawdown period, got %d", len(metrics.Drawdowns))
	}
	if metrics.Drawdowns[0].EndValue != 10750 {
		t.Errorf("Expected drawdown to close at 10750, got %f", metrics.Drawdowns[0].EndValue)
	}

	if metrics.ClosesByReason[domain.CloseReasonTakeProfit] != 1 || metrics.ClosesByReason[domain.CloseReasonStopLoss] != 1 {
		t.Errorf("Unexpected closes by reason: %v", metrics.ClosesByReason)
	}
	if metrics.ProfitBySymbol["BTCUSDT"] != 1250 {
		t.Errorf("Expected 1250 BTCUSDT profit, got %f", metrics.ProfitBySymbol["BTCUSDT"])
	}
	if len(metrics.EquityCurve) != 3 {
		t.Errorf("Expected 3 equity points, got %d", len(metrics.EquityCurve))
	}

	monthly := metrics.GetMonthlyReturns()
	if len(monthly) != 2 {
		t.Fatalf("Expected 2 months, got %d", len(monthly))
	}
	if monthly[0].Return != 500 || monthly[1].Return != 250 {
		t.Errorf("Unexpected monthly returns: %+v", monthly)
	}
}

func TestAnalyzePerformance_Empty(t *testing.T) {
	metrics := AnalyzePerformance(nil, 5000)
	if metrics.TotalTrades != 0 {
		t.Errorf("Expected 0 trades, got %d", metrics.TotalTrades)
	}
	if metrics.FinalBalance != 5000 {
		t.Errorf("Expected final balance 5000, got %f", metrics.FinalBalance)
	}
	if len(metrics.GetMonthlyReturns()) != 0 {
		t.Errorf("Expected no monthly returns")
	}
}
