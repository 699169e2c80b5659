package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"RegimeTrader/internal/usecase"

	"github.com/spf13/cobra"
)

var (
	btSymbol   string
	btStrategy string
	btJournal  bool
	btPublish  bool
	btJSON     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest the configured strategy over historical bars",
	Long: `Backtest loads bars from the configured data source (CSV or ClickHouse),
runs the strategy bar by bar and prints the performance report.

Example usage:
  regimetrader backtest --symbol NVDA
  regimetrader backtest --strategy swarm --journal --json`,
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&btSymbol, "symbol", "", "symbol to backtest (defaults to data.symbol)")
	backtestCmd.Flags().StringVar(&btStrategy, "strategy", "", "strategy kind: adaptive, swarm or trend (defaults to strategy.kind)")
	backtestCmd.Flags().BoolVar(&btJournal, "journal", false, "journal fills, trades and equity to ClickHouse")
	backtestCmd.Flags().BoolVar(&btPublish, "publish", false, "publish fills to Kafka")
	backtestCmd.Flags().BoolVar(&btJSON, "json", false, "print the full result as JSON")
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	from, to, err := cfg.Data.Range()
	if err != nil {
		return err
	}
	res, err := app.Backtest.Run(cmd.Context(), usecase.BacktestInput{
		Symbol:   btSymbol,
		Strategy: btStrategy,
		From:     from,
		To:       to,
		Journal:  btJournal,
		Publish:  btPublish,
	})
	if err != nil {
		return err
	}

	if btJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	r := res.Report
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run\t%s\n", res.RunID)
	fmt.Fprintf(w, "Symbol\t%s\n", res.Symbol)
	fmt.Fprintf(w, "Strategy\t%s\n", res.Strategy)
	fmt.Fprintf(w, "Period\t%s .. %s (%d bars)\n", res.From.Format("2006-01-02"), res.To.Format("2006-01-02"), res.Bars)
	fmt.Fprintf(w, "Final equity\t%.2f\n", r.FinalEquity)
	fmt.Fprintf(w, "Return [%%]\t%.2f\n", r.TotalReturnPct)
	fmt.Fprintf(w, "Return (ann.) [%%]\t%.2f\n", r.AnnualReturnPct)
	fmt.Fprintf(w, "Buy & hold [%%]\t%.2f\n", r.BuyHoldReturnPct)
	fmt.Fprintf(w, "Volatility (ann.) [%%]\t%.2f\n", r.AnnualVolPct)
	fmt.Fprintf(w, "Sharpe\t%.2f\n", r.Sharpe)
	fmt.Fprintf(w, "Sortino\t%.2f\n", r.Sortino)
	fmt.Fprintf(w, "Calmar\t%.2f\n", r.Calmar)
	fmt.Fprintf(w, "Max drawdown [%%]\t%.2f (%d bars)\n", r.MaxDrawdownPct, r.MaxDrawdownBars)
	fmt.Fprintf(w, "Trades\t%d\n", r.Trades)
	fmt.Fprintf(w, "Win rate [%%]\t%.2f\n", r.WinRatePct)
	fmt.Fprintf(w, "Avg win / loss [%%]\t%.2f / %.2f\n", r.AvgWinPct, r.AvgLossPct)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", r.ProfitFactor)
	fmt.Fprintf(w, "Exposure [%%]\t%.2f\n", r.ExposurePct)
	fmt.Fprintf(w, "Stop exits\t%d\n", r.StopExits)
	return w.Flush()
}
