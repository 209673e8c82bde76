package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/buildqueue"
	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/dashboard"
	"github.com/zulandar/buildyard/internal/manager"
	"github.com/zulandar/buildyard/internal/notify"
	"github.com/zulandar/buildyard/internal/notify/discord"
	"github.com/zulandar/buildyard/internal/notify/slack"
)

func newManagerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manager",
		Short: "Build manager daemon commands",
	}

	cmd.AddCommand(newManagerStartCmd())
	return cmd
}

func newManagerStartCmd() *cobra.Command {
	var (
		configPath  string
		logLevel    string
		logJSON     bool
		noDashboard bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the build manager daemon",
		Long: `Polls for idle builders and dispatches the best candidate to each,
rescoring the queue and sweeping stale builds on the configured schedules.
The status API runs alongside unless --no-dashboard is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManagerStart(cmd, configPath, logLevel, logJSON, noDashboard)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not serve the status API")
	return cmd
}

func runManagerStart(cmd *cobra.Command, configPath, logLevel string, logJSON, noDashboard bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, logLevel, logJSON)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(cfg.Notify)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	dashErr := make(chan error, 1)
	if !noDashboard {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:       gormDB,
				Port:     cfg.Dashboard.Port,
				Out:      cmd.OutOrStdout(),
				Logger:   logger,
				Gatherer: prometheus.DefaultGatherer,
			})
			if err != nil {
				// The manager is not left running without its status API.
				logger.WithError(err).Error("dashboard stopped")
				cancel()
			}
			dashErr <- err
		}()
	}

	err = manager.Run(ctx, manager.Opts{
		DB:       gormDB,
		Config:   cfg.Manager,
		Policy:   buildqueue.PolicyFromConfig(cfg.Dispatch),
		Notifier: notifier,
		Logger:   logger,
		Registry: prometheus.DefaultRegisterer,
	})
	cancel()
	if !noDashboard {
		if derr := <-dashErr; derr != nil && err == nil {
			err = derr
		}
	}
	return err
}

func newLogger(cmd *cobra.Command, level string, asJSON bool) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(lvl)
	if asJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

// newNotifier builds a notifier for every configured chat platform.
func newNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	var multi notify.Multi
	if cfg.Slack.BotToken != "" {
		n, err := slack.New(slack.Opts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if cfg.Discord.BotToken != "" {
		n, err := discord.New(discord.Opts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if len(multi) == 0 {
		return notify.Nop{}, nil
	}
	return multi, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
