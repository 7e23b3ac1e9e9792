package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairchat/internal/app"
	"pairchat/internal/config"
	"pairchat/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "pairchat",
	Short:         "One-to-one real-time chat server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and the event channel",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations or indexes for the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		store, err := app.OpenStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		logger.Info("store ready", zap.String("driver", cfg.StoreDriver))
		return store.Close(cmd.Context())
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one incognito cleanup pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background()) //nolint:errcheck

		res := a.Sweep(cmd.Context())
		fmt.Printf("swept %d chats, deleted %d messages, drained %d due entries\n", res.Chats, res.Messages, res.Drained)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	return a.Run(cmd.Context())
}

func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
