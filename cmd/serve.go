package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rgknow/edurag/internal/api"
	"github.com/rgknow/edurag/internal/app"
	"github.com/rgknow/edurag/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting edurag", "version", AppVersion, "config", cfg)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	server := api.NewServer(api.Config{
		Knowledge:   a.Knowledge,
		Manager:     a.Manager,
		Responder:   a.Responder,
		Validator:   a.Validator,
		Paths:       a.Paths,
		Recommender: a.Recommender,
		JWTSecret:   []byte(cfg.JWTSecret),
		Logger:      logger.With("component", "api"),
		Ready:       a.Ready,
	})

	return server.Run(ctx, cfg.HTTPAddr)
}
