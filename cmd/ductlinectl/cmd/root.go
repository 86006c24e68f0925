// Package cmd implements the ductlinectl operator commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ductline/ductline/internal/app"
)

var (
	cfg    *app.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ductlinectl",
	Short: "Operator tooling for Ductline",
	Long: `ductlinectl runs maintenance tasks against a Ductline deployment:
schema migrations, factor table imports, job triggers and the first admin account.

Configuration is read from the same environment variables as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		loaded, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logger = app.NewLogger(cfg)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
