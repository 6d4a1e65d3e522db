package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout accepted by the seed command.
type seedFile struct {
	Portfolios []struct {
		UserID           int64   `yaml:"user_id"`
		Balance          float64 `yaml:"balance"`
		RiskMode         string  `yaml:"risk_mode"`
		RiskValuePercent float64 `yaml:"risk_value_percent"`
		AITradeEnabled   *bool   `yaml:"ai_trade_enabled"`
	} `yaml:"portfolios"`
	Decisions []struct {
		Symbol      string  `yaml:"symbol"`
		Action      string  `yaml:"action"`
		Confidence  float64 `yaml:"confidence"`
		Price       float64 `yaml:"price"`
		Explanation string  `yaml:"explanation"`
	} `yaml:"decisions"`
	Regimes []struct {
		Symbol           string  `yaml:"symbol"`
		Regime           string  `yaml:"regime"`
		RegimeConfidence float64 `yaml:"regime_confidence"`
		Volatility24h    float64 `yaml:"volatility_24h"`
		AnomalyScore     float64 `yaml:"anomaly_score"`
	} `yaml:"regimes"`
	Summary *struct {
		MarketSentiment   string             `yaml:"market_sentiment"`
		MarketHealthScore float64            `yaml:"market_health_score"`
		TrendStrength     float64            `yaml:"trend_strength"`
		RegimePercentages map[string]float64 `yaml:"regime_percentages"`
	} `yaml:"summary"`
}

// seedResult counts the rows created by one seed run.
type seedResult struct {
	Portfolios int
	Decisions  []int64
	Regimes    int
	Summary    bool
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [FILE]",
		Short: "Load portfolios, decisions and market data from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read seed file '%s': %w", args[0], err)
			}
			sf, err := parseSeed(data)
			if err != nil {
				return fmt.Errorf("failed to parse seed file '%s': %w", args[0], err)
			}
			res, err := applySeed(ctx, rt.repo, sf, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d portfolios, %d decisions %v, %d regimes, summary %t\n",
				res.Portfolios, len(res.Decisions), res.Decisions, res.Regimes, res.Summary)
			return nil
		}),
	}
}

func parseSeed(data []byte) (*seedFile, error) {
	sf := &seedFile{}
	if err := yaml.Unmarshal(data, sf); err != nil {
		return nil, err
	}
	for i, d := range sf.Decisions {
		if _, ok := domain.ParseAction(d.Action); !ok {
			return nil, fmt.Errorf("decision %d: unknown action '%s'", i, d.Action)
		}
		if d.Symbol == "" {
			return nil, fmt.Errorf("decision %d: symbol is required", i)
		}
	}
	for i, p := range sf.Portfolios {
		if p.UserID <= 0 || p.Balance < 0 {
			return nil, fmt.Errorf("portfolio %d: user_id must be positive and balance non-negative", i)
		}
	}
	return sf, nil
}

// applySeed writes everything in one transaction.
func applySeed(ctx context.Context, store ports.Store, sf *seedFile, now time.Time) (*seedResult, error) {
	res := &seedResult{}
	err := store.WithinTx(ctx, func(ctx context.Context, repo ports.Repositories) error {
		for _, p := range sf.Portfolios {
			mode := domain.RiskMode(strings.ToUpper(p.RiskMode))
			if mode == "" {
				mode = domain.RiskModerate
			}
			riskPct := p.RiskValuePercent
			if riskPct <= 0 {
				riskPct = 2
			}
			enabled := p.AITradeEnabled == nil || *p.AITradeEnabled
			if _, err := repo.CreatePortfolio(ctx, &domain.Portfolio{
				UserID:           p.UserID,
				Balance:          p.Balance,
				Equity:           p.Balance,
				InitialBalance:   p.Balance,
				RiskMode:         mode,
				RiskValuePercent: riskPct,
				AITradeEnabled:   enabled,
			}); err != nil {
				return fmt.Errorf("seed portfolio for user %d: %w", p.UserID, err)
			}
			res.Portfolios++
		}

		for _, d := range sf.Decisions {
			action, _ := domain.ParseAction(d.Action)
			id, err := repo.CreateDecision(ctx, &domain.Decision{
				Symbol:      strings.ToUpper(d.Symbol),
				Action:      action,
				Confidence:  d.Confidence,
				Price:       d.Price,
				Explanation: d.Explanation,
				CreatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("seed decision for %s: %w", d.Symbol, err)
			}
			res.Decisions = append(res.Decisions, id)
		}

		for _, r := range sf.Regimes {
			if _, err := repo.SaveRegime(ctx, &domain.MarketRegimeSnapshot{
				Symbol:           strings.ToUpper(r.Symbol),
				Regime:           domain.Regime(strings.ToLower(r.Regime)),
				RegimeConfidence: r.RegimeConfidence,
				Volatility24h:    r.Volatility24h,
				AnomalyScore:     r.AnomalyScore,
				Timestamp:        now,
			}); err != nil {
				return fmt.Errorf("seed regime for %s: %w", r.Symbol, err)
			}
			res.Regimes++
		}

		if sf.Summary != nil {
			pct := make(map[domain.Regime]float64, len(sf.Summary.RegimePercentages))
			for k, v := range sf.Summary.RegimePercentages {
				pct[domain.Regime(strings.ToLower(k))] = v
			}
			if _, err := repo.SaveSummary(ctx, &domain.MarketSummary{
				Date:              now,
				MarketSentiment:   domain.Sentiment(strings.ToLower(sf.Summary.MarketSentiment)),
				MarketHealthScore: sf.Summary.MarketHealthScore,
				TrendStrength:     sf.Summary.TrendStrength,
				RegimePercentages: pct,
			}); err != nil {
				return fmt.Errorf("seed market summary: %w", err)
			}
			res.Summary = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
