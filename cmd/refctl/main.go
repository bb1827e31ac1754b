// Package main provides refctl, the command line front end to the reference
// service: acquisition runs, location lookups, citation checks and wishlist
// exports against the configured store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/helixir/reference-service/internal/app"
	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/observability"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Exit codes.
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitConfigError = 2
)

var (
	humanOutput bool
	logLevel    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "refctl",
	Short: "Acquire papers and verify citations",
	Long: `refctl drives the reference service from the command line.

Commands share the service configuration (config.yaml, REFSVC_* variables,
and a .env file in the working directory). Output is JSON unless --human
is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.Version = Version
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openApp loads configuration and wires the application. Logs go to stderr so
// stdout stays machine readable.
func openApp(ctx context.Context) (*app.App, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitConfigError)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	})

	return app.New(ctx, cfg, logger.With().Str("component", "refctl").Logger(), nil)
}

// outputJSON writes v as indented JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
