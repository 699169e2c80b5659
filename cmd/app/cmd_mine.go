package main

import (
	"fmt"
	"time"

	"RegimeTrader/internal/usecase"

	"github.com/spf13/cobra"
)

var (
	mineSymbol string
	mineFrom   string
	mineTo     string
	mineOut    string
	mineStore  bool
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Build a signal-annotated bar file from Yahoo prices and LLM regime scores",
	Long: `Mine downloads daily prices and VIX closes, scores each week with the LLM
(rule-based fallback without an API key), adds a daily sentiment heuristic and
writes the lagged signals to a CSV the backtest can load.

Example usage:
  regimetrader mine --symbol NVDA --from 2023-01-01 --to 2024-01-01 --out data/nvda.csv`,
	RunE: runMine,
}

func init() {
	mineCmd.Flags().StringVar(&mineSymbol, "symbol", "", "symbol to mine (defaults to data.symbol)")
	mineCmd.Flags().StringVar(&mineFrom, "from", "", "first day, YYYY-MM-DD (defaults to data.start)")
	mineCmd.Flags().StringVar(&mineTo, "to", "", "last day, YYYY-MM-DD (defaults to data.end)")
	mineCmd.Flags().StringVar(&mineOut, "out", "", "output CSV (defaults to data.csv_path)")
	mineCmd.Flags().BoolVar(&mineStore, "store", false, "also store the bars in ClickHouse")
}

func runMine(cmd *cobra.Command, _ []string) error {
	cfg, app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	from, to, err := cfg.Data.Range()
	if err != nil {
		return err
	}
	if mineFrom != "" {
		if from, err = time.Parse(time.DateOnly, mineFrom); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if mineTo != "" {
		if to, err = time.Parse(time.DateOnly, mineTo); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}
	in := usecase.MineInput{
		Symbol:    cfg.Data.Symbol,
		VIXSymbol: cfg.Data.VIXSymbol,
		From:      from,
		To:        to,
		Seed:      cfg.Data.Seed,
		Output:    cfg.Data.CSVPath,
		Store:     mineStore,
	}
	if mineSymbol != "" {
		in.Symbol = mineSymbol
	}
	if mineOut != "" {
		in.Output = mineOut
	}

	res, err := app.Miner.Mine(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Printf("mined %d bars over %d weeks for %s -> %s (%s)\n",
		len(res.Bars), len(res.Weeks), res.Symbol, res.Output, res.Took.Round(time.Millisecond))
	return nil
}
