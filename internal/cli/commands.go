// Package cli exposes the engine operations as cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"aiTradeEngine/config"
	"aiTradeEngine/internal/analytics"
	"aiTradeEngine/internal/app"
	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/metrics"
	"aiTradeEngine/internal/utils"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aitrade",
		Short: "AI trade decision validation and execution engine",
		Long: `aitrade validates AI-generated trading decisions against market context,
executes them across every AI-enabled portfolio and monitors the resulting positions.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newExecuteCmd())
	rootCmd.AddCommand(newExecutePendingCmd())
	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newSLTPCmd())
	rootCmd.AddCommand(newCloseCmd())
	rootCmd.AddCommand(newCloseAllCmd())
	rootCmd.AddCommand(newRepairCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSeedCmd())

	return rootCmd
}

// withRuntime loads configuration, wires the engine and releases it after fn returns.
func withRuntime(fn func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)
		return fn(ctx, cmd, rt, args)
	}
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s '%s'", what, raw)
	}
	return id, nil
}

func newExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute [DECISION_ID]",
		Short: "Validate and execute one decision for every AI-enabled portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			id, err := parseID(args[0], "decision id")
			if err != nil {
				return err
			}
			summary, err := rt.engine.ExecuteDecision(ctx, id)
			if err != nil {
				return fmt.Errorf("execute decision %d: %w", id, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Decision %d: %s\n", summary.DecisionID, summary.Status)
			if err := summary.Err(); err != nil {
				fmt.Fprintf(out, "Not executed: %v\n", err)
				return nil
			}
			if summary.Reason != "" {
				fmt.Fprintf(out, "Reason:    %s\n", summary.Reason)
			}
			fmt.Fprintf(out, "Users:     %d (succeeded %d, skipped %d, failed %d)\n",
				summary.Total, summary.Succeeded, summary.Skipped, summary.Failed)
			return nil
		}),
	}
}

func newExecutePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute-pending",
		Short: "Process every pending decision",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			summary, err := rt.engine.ExecutePending(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d: executed %d, rejected %d, expired %d, failed %d\n",
				summary.Processed, summary.Executed, summary.Rejected, summary.Expired, summary.Failed)
			return nil
		}),
	}
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Refresh floating pnl and equity for every open position",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			n, err := rt.engine.UpdateAllFloatingPnL(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d positions\n", n)
			return nil
		}),
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close positions that hit stop-loss, take-profit, risk band or holding limit",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			summary, err := rt.engine.AutoClosePositions(ctx)
			if err != nil {
				return err
			}
			printCloseSummary(cmd, summary)
			return nil
		}),
	}
}

func newSLTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sltp",
		Short: "Close positions whose stop-loss or take-profit price was reached",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			n, err := rt.engine.MonitorSLTP(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed %d positions\n", n)
			return nil
		}),
	}
}

func newCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close [POSITION_ID]",
		Short: "Close one open position at the current market price",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			id, err := parseID(args[0], "position id")
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			var userID *int64
			if cmd.Flags().Changed("user") {
				u, _ := cmd.Flags().GetInt64("user")
				userID = &u
			}

			result, err := rt.engine.ClosePositionManually(ctx, id, userID, reason)
			if err != nil {
				return fmt.Errorf("close position %d: %s: %w", id, result.Message, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (price %.4f, pnl %.2f)\n", result.Message, result.ClosePrice, result.PnL)
			return nil
		}),
	}
	cmd.Flags().Int64("user", 0, "Owner user id; the close is refused when the position belongs to someone else")
	cmd.Flags().String("reason", string(domain.CloseReasonManual), "Close reason recorded in trade history")
	return cmd
}

func newCloseAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close-all [USER_ID]",
		Short: "Close every open position of a user",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			summary, err := rt.engine.CloseAllPositions(ctx, userID, reason)
			if err != nil {
				return err
			}
			printCloseSummary(cmd, summary)
			return nil
		}),
	}
	cmd.Flags().String("reason", string(domain.CloseReasonManual), "Close reason recorded in trade history")
	return cmd
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair [USER_ID]",
		Short: "Recompute a portfolio's balance, realized pnl and equity from its history",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			result, err := rt.engine.RepairPortfolioData(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nBalance: %.2f  Equity: %.2f  Realized: %.2f\n",
				result.Message, result.Balance, result.Equity, result.RealizedPnL)
			return nil
		}),
	}
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [USER_ID]",
		Short: "Show performance metrics over a user's closed positions",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			p, err := rt.repo.LoadPortfolio(ctx, userID)
			if err != nil {
				return fmt.Errorf("load portfolio for user %d: %w", userID, err)
			}
			closed, err := rt.repo.FindClosedPositionsByUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("load closed positions for user %d: %w", userID, err)
			}
			printReport(cmd, p, analytics.AnalyzePerformance(closed, p.InitialBalance))

			if path, _ := cmd.Flags().GetString("csv"); path != "" {
				trades, err := rt.repo.FindTradesByUser(ctx, userID)
				if err != nil {
					return fmt.Errorf("load trade history for user %d: %w", userID, err)
				}
				if err := utils.WriteTradesToCSVFile(trades, path); err != nil {
					return fmt.Errorf("write trade history to '%s': %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d trades to %s\n", len(trades), path)
			}
			return nil
		}),
	}
	cmd.Flags().String("csv", "", "Also export the user's trade history to this CSV file")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic monitor, sltp and pending-decision jobs and serve metrics",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
			scheduler, err := app.NewScheduler(rt.engine, rt.logger,
				rt.cfg.MonitorInterval, rt.cfg.SLTPInterval, rt.cfg.PendingInterval)
			if err != nil {
				return err
			}
			rt.checkExchange(ctx)

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: rt.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				rt.logger.Info(ctx, "Serving metrics", map[string]interface{}{"addr": rt.cfg.MetricsAddr})
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					rt.logger.Error(ctx, err, "Metrics server stopped")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			return scheduler.Start(ctx)
		}),
	}
}

func printCloseSummary(cmd *cobra.Command, s *app.CloseSummary) {
	fmt.Fprintf(cmd.OutOrStdout(), "Checked %d: closed %d, skipped %d, failed %d, pnl %.2f\n",
		s.Checked, s.Closed, s.Skipped, s.Failed, s.TotalPnL)
}

func printReport(cmd *cobra.Command, p *domain.Portfolio, m *analytics.PerformanceMetrics) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Portfolio of user %d (%s)\n", p.UserID, p.RiskMode)
	fmt.Fprintf(out, "Balance:          %.2f\n", p.Balance)
	fmt.Fprintf(out, "Equity:           %.2f\n", p.Equity)
	fmt.Fprintf(out, "Initial balance:  %.2f\n", p.InitialBalance)
	fmt.Fprintf(out, "Closed positions: %d (won %d, lost %d)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	if m.TotalTrades == 0 {
		return
	}
	fmt.Fprintf(out, "Win rate:         %.1f%%\n", m.WinRate*100)
	fmt.Fprintf(out, "Total pnl:        %.2f\n", m.TotalProfit)
	fmt.Fprintf(out, "Profit factor:    %.2f\n", m.ProfitFactor)
	fmt.Fprintf(out, "Expectancy:       %.2f\n", m.Expectancy)
	fmt.Fprintf(out, "Max drawdown:     %.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(out, "Avg hold:         %s\n", m.AverageHoldDuration.Round(time.Second))
	for _, mr := range m.GetMonthlyReturns() {
		fmt.Fprintf(out, "  %s  %+.2f\n", mr.Month.Format("2006-01"), mr.Return)
	}
}
