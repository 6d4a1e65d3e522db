package risk

import (
	"testing"

	"aiTradeEngine/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestRegimeMultiplier(t *testing.T) {
	tests := map[domain.Regime]float64{
		domain.RegimeBull:     1.2,
		domain.RegimeBear:     0.8,
		domain.RegimeNeutral:  1.0,
		domain.RegimeReversal: 0.5,
		domain.Regime("odd"):  1.0,
	}
	for regime, want := range tests {
		assert.Equal(t, want, RegimeMultiplier(regime), string(regime))
	}
}

func TestLookupTables(t *testing.T) {
	tests := []struct {
		name string
		fn   func(float64) float64
		in   float64
		want float64
	}{
		{"regime confidence high", RegimeConfidenceMultiplier, 0.85, 1.1},
		{"regime confidence boundary 0.8", RegimeConfidenceMultiplier, 0.8, 1.0},
		{"regime confidence mid", RegimeConfidenceMultiplier, 0.5, 0.9},
		{"regime confidence low", RegimeConfidenceMultiplier, 0.4, 0.8},
		{"volatility extreme", VolatilityMultiplier, 0.06, 0.6},
		{"volatility high", VolatilityMultiplier, 0.04, 0.8},
		{"volatility elevated", VolatilityMultiplier, 0.025, 0.9},
		{"volatility normal", VolatilityMultiplier, 0.015, 1.0},
		{"volatility boundary 0.01", VolatilityMultiplier, 0.01, 1.1},
		{"volatility calm", VolatilityMultiplier, 0.004, 1.2},
		{"anomaly veto", AnomalyMultiplier, 0.75, 0.0},
		{"anomaly boundary 0.7", AnomalyMultiplier, 0.7, 0.5},
		{"anomaly moderate", AnomalyMultiplier, 0.4, 0.8},
		{"anomaly none", AnomalyMultiplier, 0.1, 1.0},
		{"confidence 80 inclusive", ConfidenceMultiplier, 80, 1.2},
		{"confidence 75", ConfidenceMultiplier, 75, 1.1},
		{"confidence 60", ConfidenceMultiplier, 60, 1.0},
		{"confidence 55", ConfidenceMultiplier, 55, 0.9},
		{"confidence 10", ConfidenceMultiplier, 10, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}
