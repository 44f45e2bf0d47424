package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamrehn/ClimateQuery/internal/query"
	"github.com/adamrehn/ClimateQuery/internal/services"
)

func newDatasetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"ds"},
		Short:   "Manage built datasets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List datasets in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			datasets, err := app.Datasets.List(cmd.Context())
			if err != nil {
				return err
			}

			renderDatasets(cmd.OutOrStdout(), datasets)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show a dataset's request and backing store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			dataset, err := app.Datasets.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, services.Summary(dataset, nil))
			fmt.Fprintf(out, "\nGranularity:     %s\n", dataset.Granularity)
			fmt.Fprintf(out, "Percent present: %.2f\n", dataset.PercentPresent)
			fmt.Fprintf(out, "Backing store:   %s\n", dataset.Database)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a dataset and its backing store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Datasets.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted dataset %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "presence ID",
		Short: "Report the share of days with quality-approved data per station and year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Datasets.PresenceReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			renderPresence(cmd.OutOrStdout(), report)
			return nil
		},
	})

	return cmd
}

func newQueriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queries [DATASET_ID]",
		Short: "List catalog queries",
		Long: `List every query in the catalog, or only the queries a dataset supports
when its ID is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				renderQueries(cmd.OutOrStdout(), query.NewCatalog().All())
				return nil
			}

			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			queries, err := app.Datasets.SupportedQueries(cmd.Context(), args[0], app.Catalog)
			if err != nil {
				return err
			}

			renderQueries(cmd.OutOrStdout(), queries)
			return nil
		},
	}
}
