package risk

import "aiTradeEngine/internal/domain"

// Each table maps one market or decision attribute to a sizing multiplier.
// Thresholds are evaluated top-down; the first match wins.

type threshold struct {
	above      float64
	multiplier float64
}

func lookup(v float64, table []threshold, fallback float64) float64 {
	for _, t := range table {
		if v > t.above {
			return t.multiplier
		}
	}
	return fallback
}

var (
	regimeConfidenceTable = []threshold{{0.8, 1.1}, {0.6, 1.0}, {0.4, 0.9}}
	volatilityTable       = []threshold{{0.05, 0.6}, {0.03, 0.8}, {0.02, 0.9}, {0.01, 1.0}, {0.005, 1.1}}
	anomalyTable          = []threshold{{0.7, 0.0}, {0.5, 0.5}, {0.3, 0.8}}
)

// RegimeMultiplier scales size by regime label.
func RegimeMultiplier(r domain.Regime) float64 {
	switch r {
	case domain.RegimeBull:
		return 1.2
	case domain.RegimeBear:
		return 0.8
	case domain.RegimeReversal:
		return 0.5
	default:
		return 1.0
	}
}

// RegimeConfidenceMultiplier scales size by regime confidence (0-1).
func RegimeConfidenceMultiplier(confidence float64) float64 {
	return lookup(confidence, regimeConfidenceTable, 0.8)
}

// VolatilityMultiplier scales size by 24h volatility expressed as a fraction (0.02 == 2%).
func VolatilityMultiplier(volatility float64) float64 {
	return lookup(volatility, volatilityTable, 1.2)
}

// AnomalyMultiplier scales size by anomaly score (0-1). Above 0.7 it is a veto (0).
func AnomalyMultiplier(score float64) float64 {
	return lookup(score, anomalyTable, 1.0)
}

// ConfidenceMultiplier scales size by AI decision confidence (0-100). Bounds are inclusive.
func ConfidenceMultiplier(confidence float64) float64 {
	switch {
	case confidence >= 80:
		return 1.2
	case confidence >= 70:
		return 1.1
	case confidence >= 60:
		return 1.0
	case confidence >= 50:
		return 0.9
	default:
		return 0.8
	}
}
