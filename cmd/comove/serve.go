package main

import (
	"github.com/spf13/cobra"

	"comove/internal/di"
	"comove/pkg/config"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, Kafka and queue service",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return err
			}
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	return cmd
}
