package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskrouter/internal/app"
	"github.com/randalmurphal/taskrouter/internal/logging"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the router graph as a Mermaid diagram",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// Wiring only; nothing is persisted.
		cfg.Checkpoint = app.CheckpointConfig{Driver: "memory"}
		cfg.Lock = app.LockConfig{Driver: "local"}

		a, err := app.New(cmd.Context(), cfg, logging.NewNop())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprint(cmd.OutOrStdout(), a.Graph.Mermaid())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
