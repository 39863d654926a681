package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskrouter/internal/app"
	"github.com/randalmurphal/taskrouter/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "taskrouter",
	Short: "Conversational task router with human approval of actions",
	Long: `taskrouter classifies each utterance, answers questions with a language model
and proposes vehicle actions that only run after a human approves them.
Conversations are checkpointed per session and survive restarts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML or JSON config file")
}

// loadConfig reads the --config file with environment overrides applied.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if _, err := os.Stat("config/taskrouter.yaml"); err == nil {
			path = "config/taskrouter.yaml"
		}
	}
	return app.Load(path, os.Environ())
}

func newLogger(cfg app.Config) *slog.Logger {
	return logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
}
