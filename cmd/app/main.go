package main

import (
	"fmt"
	"os"

	"RegimeTrader/internal/di"
	"RegimeTrader/pkg/config"
	"RegimeTrader/pkg/server"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "regimetrader",
	Short: "Regime-adaptive trading strategy engine",
	Long: `RegimeTrader classifies each daily bar into a market regime from an
LLM regime score, switches between aggressive, defensive and mean-reversion
rules, and runs the result as a backtest or a live paper trader.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, backtestCmd, mineCmd)
}

// buildApp loads config and wires the application graph.
func buildApp() (*config.Config, *server.App, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return cfg, app, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
