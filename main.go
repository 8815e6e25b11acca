package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hit-tracker/pkg/commands"
	"hit-tracker/pkg/config"
	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "hits",
	Short: "Hit tracker - per-visitor hit counts with periodic durable sync",
	Long: `Hit tracker counts visits per client address, keeps the most recent
distinct visitors, and periodically syncs visits to a durable store.

Available commands:
  serve  - Start the HTTP server and sync scheduler
  stats  - Show statistics from the durable store
  config - Inspect resolved configuration

Examples:
  hits serve
  hits stats
  hits config show --format json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := commands.LoadConfig()
		if err != nil {
			return err
		}
		// 'config show' output should stay clean.
		if cmd.Name() == "show" {
			return nil
		}
		return initLogging(cfg)
	},
}

func initLogging(cfg *config.Config) error {
	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		return errors.WithHint(errors.Wrap(err, "failed to initialize logger"),
			"log.level accepts debug, info, warn or error")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "Path to a hits.toml config file")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
