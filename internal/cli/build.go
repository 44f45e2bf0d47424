package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/services"
)

// errRequestUnsupported makes validate exit non-zero when any station lacks data
var errRequestUnsupported = errors.New("data request is not fully supported by the source data")

func newBuildCommand() *cobra.Command {
	var (
		request    requestFlags
		skipChecks bool
	)

	cmd := &cobra.Command{
		Use:   "build NAME",
		Short: "Build a dataset from BOM data directories",
		Long: `Extract the requested stations, measures and years from each measure's source
directory into a new dataset. The request is validated against the station
details files first unless --skip-validation is given.`,
		Example: `  # Daily rainfall and solar exposure for two Perth stations in 2000-2005
  climatequery build "Perth" -s 9021 -s 9034 \
    -m Rainfall=./data/rainfall -m 193=./data/solar \
    --start-year 2000 --end-year 2005`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := request.build()
			if err != nil {
				return err
			}

			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()

			if !skipChecks {
				report, err := app.Validator.Validate(ctx, req)
				if err != nil {
					return err
				}
				if !report.Valid {
					renderValidation(cmd.ErrOrStderr(), report)
					return errRequestUnsupported
				}
			}

			dataset, err := app.Datasets.Create(ctx, args[0], req, func(p models.BuildProgress) {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%3.0f%%] %s\n", p.PercentComplete(), p)
			})
			if err != nil {
				return err
			}

			renderDatasets(cmd.OutOrStdout(), []*models.Dataset{dataset})
			return nil
		},
	}

	addRequestFlags(cmd.Flags(), &request)
	cmd.Flags().BoolVar(&skipChecks, "skip-validation", false, "Build without checking station coverage first")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var request requestFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that source data covers a request",
		Long: `Check every requested station against the station details file of each
measure's source directory, reporting the years each station has data for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := request.build()
			if err != nil {
				return err
			}

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			logger := cfg.NewLogger("climatequery-cli", Version)
			logger.SetOutput(cmd.ErrOrStderr())
			validator := services.NewValidator(logger, newCLICollector(cfg), cfg.StoreOptions())

			report, err := validator.Validate(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(report.Details) > 0 {
				renderValidation(out, report)
			}
			if !report.Valid {
				return errRequestUnsupported
			}

			fmt.Fprintln(out, "Request is supported by the source data")
			return nil
		},
	}

	addRequestFlags(cmd.Flags(), &request)
	return cmd
}
