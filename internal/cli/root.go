package cli

import (
	"github.com/spf13/cobra"

	"trackbus/internal/config"
	"trackbus/internal/log"
)

// Set by the root command before any subcommand runs.
var (
	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trackbus",
	Short: "Track partner investments, expenses and sales",
	Long: `trackbus keeps a live profit and loss report for a small business.
Each partner's share follows the money they put in.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func setup(cmd *cobra.Command, _ []string) error {
	LoadEnvFile()
	c, err := LoadAndValidateConfig()
	if err != nil {
		return err
	}
	cfg = c
	logger = SetupLogger(c, cmd.ErrOrStderr())
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
