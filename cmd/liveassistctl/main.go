package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentx/liveassist/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "liveassistctl",
	Short:         "Operator tooling for the LiveAssist relay",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(newTokenCmd(), newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}
