package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gotosleep/authlogic-openid/internal/app"
	"github.com/gotosleep/authlogic-openid/internal/config"
	"github.com/gotosleep/authlogic-openid/internal/db"
	"github.com/gotosleep/authlogic-openid/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "authlogic-openid"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "OpenID login service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: serviceName})
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the accounts schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			conn, err := db.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.Migrate(cmd.Context(), conn.DB); err != nil {
				return err
			}
			logger.L().Info("migration complete")
			return nil
		},
	})

	return root
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.L().Error("failed to initialize app", zap.Error(err))
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	logger.L().Info("service started", zap.String("port", cfg.App.Port))

	select {
	case <-ctx.Done(): // wait for Ctrl+C
		logger.L().Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.L().Error("http server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	logger.L().Info("service stopped cleanly")
	return nil
}
