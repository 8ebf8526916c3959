// Package cmd implements the ruleset command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solatis/ruleset/internal/core/config"
)

// Version is the release version reported by the CLI and server logs.
const Version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:           "ruleset",
	Short:         "Condition catalog compiler and evaluation service",
	Long:          `ruleset compiles declarative condition catalogs into predicates and evaluates items against them, from the command line or over gRPC.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path")
	pf.String("db-url", "", "database connection URL (sqlite://path or postgres://...)")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

// loadConfig resolves configuration for cmd (flags > env > file > defaults)
// and builds the logger it describes.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}
