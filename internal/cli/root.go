// Package cli provides the command-line interface for ClimateQuery.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/adamrehn/ClimateQuery/internal/config"
)

// Version information (set at build time)
var Version = "1.0.0"

type configKey struct{}

type rootFlags struct {
	dataDir  string
	logLevel string
	verbose  bool
}

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "climatequery",
		Short: "ClimateQuery - query Bureau of Meteorology climate data",
		Long: `ClimateQuery extracts stations, measures and years from Bureau of Meteorology
climate data directories into datasets, then runs catalog queries against them
and exports the results as CSV.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			if flags.dataDir != "" {
				cfg.Data.Dir = flags.dataDir
			}
			if flags.logLevel != "" {
				cfg.Logging.Level = flags.logLevel
			}
			if flags.verbose {
				cfg.Logging.Level = "debug"
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Application data directory (default: $DATA_DIR or ~/.config/ClimateQuery)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose output, same as --log-level debug")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDatasetsCommand())
	rootCmd.AddCommand(newQueriesCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newToolsCommand())

	return rootCmd
}

func getConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey{}).(*config.Config)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
