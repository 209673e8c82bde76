package main

import (
	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/dashboard"
)

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the status API",
		Long:  "Serves builder, queue and build status as JSON, plus health and Prometheus metrics endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, logLevel, false)
			if err != nil {
				return err
			}
			if port <= 0 {
				port = cfg.Dashboard.Port
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			return dashboard.Start(ctx, dashboard.StartOpts{
				DB:     gormDB,
				Port:   port,
				Out:    cmd.OutOrStdout(),
				Logger: logger,
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}
