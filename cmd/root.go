// Package cmd contains the edurag CLI: serve runs the HTTP API, migrate
// applies the database schema, version prints build information.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rgknow/edurag/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "edurag",
	Short: "edurag - retrieval-augmented tutoring service",
	Long: `edurag serves an education platform's tutoring core: it ingests course
material into knowledge bases, retrieves relevant chunks for learner
questions, and runs grounded tutoring sessions over HTTP.

Run 'edurag serve' to start the API server.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG in the environment lowers the
// level; EDURAG_LOG_JSON switches to JSON output for log shippers.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("EDURAG_LOG_JSON") != "" {
		cfg.JSON = true
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}
