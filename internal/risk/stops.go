package risk

import (
	"aiTradeEngine/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	slVolatilityFactor = 1.5
	minSLDistance      = 0.01
	maxSLDistance      = 0.10
	minTPDistance      = 0.02
	maxTPDistance      = 0.20

	fallbackLongSL, fallbackLongTP   = 0.97, 1.06
	fallbackShortSL, fallbackShortTP = 1.03, 0.94
)

// stopRegimeMultiplier widens or tightens the stop distance by regime and side.
func stopRegimeMultiplier(r domain.Regime, posType domain.PositionType) float64 {
	switch r {
	case domain.RegimeBull:
		if posType == domain.Long {
			return 0.8
		}
		return 1.2
	case domain.RegimeBear:
		if posType == domain.Short {
			return 0.8
		}
		return 1.2
	case domain.RegimeReversal:
		return 1.3
	default:
		return 1.0
	}
}

// StopDistances returns the fractional stop-loss and take-profit distances for a regime snapshot.
func StopDistances(regime *domain.MarketRegimeSnapshot, posType domain.PositionType) (slDistance, tpDistance float64) {
	base := regime.Volatility24h * slVolatilityFactor
	slDistance = clamp(base*stopRegimeMultiplier(regime.Regime, posType), minSLDistance, maxSLDistance)
	tpDistance = clamp(slDistance*2, minTPDistance, maxTPDistance)
	return slDistance, tpDistance
}

// StopLossTakeProfit computes protective prices rounded to 4 decimal places.
// Without a regime snapshot fixed conservative bands are used.
func StopLossTakeProfit(entry float64, posType domain.PositionType, regime *domain.MarketRegimeSnapshot) (stopLoss, takeProfit float64) {
	e := decimal.NewFromFloat(entry)
	one := decimal.NewFromInt(1)

	var slFactor, tpFactor decimal.Decimal
	switch {
	case regime == nil && posType == domain.Long:
		slFactor, tpFactor = decimal.NewFromFloat(fallbackLongSL), decimal.NewFromFloat(fallbackLongTP)
	case regime == nil:
		slFactor, tpFactor = decimal.NewFromFloat(fallbackShortSL), decimal.NewFromFloat(fallbackShortTP)
	default:
		sl, tp := StopDistances(regime, posType)
		slD, tpD := decimal.NewFromFloat(sl), decimal.NewFromFloat(tp)
		if posType == domain.Long {
			slFactor, tpFactor = one.Sub(slD), one.Add(tpD)
		} else {
			slFactor, tpFactor = one.Add(slD), one.Sub(tpD)
		}
	}

	return e.Mul(slFactor).Round(4).InexactFloat64(), e.Mul(tpFactor).Round(4).InexactFloat64()
}
