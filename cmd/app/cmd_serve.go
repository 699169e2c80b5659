package main

import (
	"RegimeTrader/pkg/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the paper trader and the Kafka bar consumer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, app, err := buildApp()
		if err != nil {
			return err
		}
		app.Logger.Info("starting",
			logger.String("env", cfg.Environment),
			logger.String("backend", cfg.Backend.Type),
			logger.Bool("stream", cfg.Stream.Enabled),
			logger.Bool("consumer", cfg.Kafka.Consumer.Enabled),
		)
		return app.Run(cmd.Context())
	},
}
