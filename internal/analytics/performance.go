// Package analytics summarizes a user's closed positions into performance metrics.
package analytics

import (
	"sort"
	"time"

	"aiTradeEngine/internal/domain"
)

const monthLayout = "2006-01"

// PerformanceMetrics describes realized results of a portfolio, replayed in close order.
type PerformanceMetrics struct {
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int // Breakeven closes count as losses
	WinRate            float64
	TotalProfit        float64
	GrossProfit        float64
	GrossLoss          float64 // Negative
	MaxDrawdown        float64 // Fraction of the running peak balance
	ProfitFactor       float64
	AverageWin         float64
	AverageLoss        float64 // Negative
	FinalBalance       float64
	ReturnOnInvestment float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldDuration  time.Duration
	RecoveryFactor       float64
	Expectancy           float64
	RiskRewardRatio      float64
	MonthlyReturns       map[string]float64 // Keyed by "YYYY-MM" of the close
	ClosesByReason       map[domain.CloseReason]int
	ProfitBySymbol       map[string]float64
	Drawdowns            []Drawdown
	EquityCurve          []EquityPoint
}

// Drawdown is a stretch where the balance stayed below its previous peak.
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64 // Peak the drawdown is measured from
	EndValue   float64
	Depth      float64
	Duration   time.Duration
}

type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

type streaks struct {
	wins, losses       int
	maxWins, maxLosses int
}

func (s *streaks) record(win bool) {
	if win {
		s.wins, s.losses = s.wins+1, 0
		s.maxWins = max(s.maxWins, s.wins)
		return
	}
	s.wins, s.losses = 0, s.losses+1
	s.maxLosses = max(s.maxLosses, s.losses)
}

// drawdownTracker follows the running peak and collects underwater periods.
type drawdownTracker struct {
	peak    float64
	open    *Drawdown
	periods []Drawdown
	max     float64
}

// observe returns the drawdown fraction at balance.
func (d *drawdownTracker) observe(at time.Time, balance float64) float64 {
	if balance > d.peak {
		d.peak = balance
		d.finish(at, balance)
		return 0
	}
	if d.peak <= 0 {
		return 0
	}
	depth := (d.peak - balance) / d.peak
	if depth == 0 {
		return 0
	}
	if d.open == nil {
		d.open = &Drawdown{StartTime: at, StartValue: d.peak}
	}
	d.open.Depth = max(d.open.Depth, depth)
	d.max = max(d.max, depth)
	return depth
}

func (d *drawdownTracker) finish(at time.Time, balance float64) {
	if d.open == nil {
		return
	}
	d.open.EndTime = at
	d.open.EndValue = balance
	d.open.Duration = at.Sub(d.open.StartTime)
	d.periods = append(d.periods, *d.open)
	d.open = nil
}

// AnalyzePerformance replays closed positions by close time starting from initialBalance.
// Open positions are ignored.
func AnalyzePerformance(positions []*domain.Position, initialBalance float64) *PerformanceMetrics {
	m := &PerformanceMetrics{
		FinalBalance:   initialBalance,
		MonthlyReturns: map[string]float64{},
		ClosesByReason: map[domain.CloseReason]int{},
		ProfitBySymbol: map[string]float64{},
		Drawdowns:      []Drawdown{},
		EquityCurve:    []EquityPoint{},
	}

	var closed []*domain.Position
	for _, p := range positions {
		if p.Status == domain.StatusClosed {
			closed = append(closed, p)
		}
	}
	if len(closed) == 0 {
		return m
	}
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].ClosedAt.Before(closed[j].ClosedAt) })

	balance := initialBalance
	dd := &drawdownTracker{peak: initialBalance}
	var st streaks
	var held time.Duration

	for _, p := range closed {
		pnl := p.RealizedPnL
		win := pnl > 0
		st.record(win)
		if win {
			m.WinningTrades++
			m.GrossProfit += pnl
		} else {
			m.LosingTrades++
			m.GrossLoss += pnl
		}

		balance += pnl
		m.TotalProfit += pnl
		m.MonthlyReturns[p.ClosedAt.Format(monthLayout)] += pnl
		m.ClosesByReason[p.CloseReason]++
		m.ProfitBySymbol[p.Symbol] += pnl
		held += p.HoldingDuration(p.ClosedAt)

		m.EquityCurve = append(m.EquityCurve, EquityPoint{
			Time:     p.ClosedAt,
			Value:    balance,
			Drawdown: dd.observe(p.ClosedAt, balance),
		})
	}
	dd.finish(closed[len(closed)-1].ClosedAt, balance)

	m.TotalTrades = len(closed)
	m.FinalBalance = balance
	m.MaxDrawdown = dd.max
	m.Drawdowns = append(m.Drawdowns, dd.periods...)
	m.MaxConsecutiveWins, m.MaxConsecutiveLosses = st.maxWins, st.maxLosses
	m.AverageHoldDuration = held / time.Duration(len(closed))
	m.finalize(initialBalance)
	return m
}

// finalize derives the ratio metrics from the accumulated totals.
func (m *PerformanceMetrics) finalize(initialBalance float64) {
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLoss / float64(m.LosingTrades)
	}
	if m.GrossLoss < 0 {
		m.ProfitFactor = m.GrossProfit / -m.GrossLoss
	}
	if m.AverageLoss < 0 {
		m.RiskRewardRatio = m.AverageWin / -m.AverageLoss
	}
	m.Expectancy = m.WinRate*m.AverageWin + (1-m.WinRate)*m.AverageLoss
	if initialBalance <= 0 {
		return
	}
	m.ReturnOnInvestment = (m.FinalBalance - initialBalance) / initialBalance
	if m.MaxDrawdown > 0 {
		m.RecoveryFactor = m.TotalProfit / (initialBalance * m.MaxDrawdown)
	}
}

// GetMonthlyReturns lists MonthlyReturns in calendar order.
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	months := make([]string, 0, len(m.MonthlyReturns))
	for k := range m.MonthlyReturns {
		months = append(months, k)
	}
	sort.Strings(months)

	out := make([]MonthlyReturn, 0, len(months))
	for _, k := range months {
		t, err := time.Parse(monthLayout, k)
		if err != nil {
			continue
		}
		out = append(out, MonthlyReturn{Month: t, Return: m.MonthlyReturns[k]})
	}
	return out
}
