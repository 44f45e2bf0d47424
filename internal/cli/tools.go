package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/services"
)

func newToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Preprocess BOM data directories",
	}

	cmd.AddCommand(newToolsListCommand())
	cmd.AddCommand(newMergeDirsCommand())
	cmd.AddCommand(newAggregateCommand())
	return cmd
}

func newToolsListCommand() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the preprocessing tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			t := newTable(cmd.OutOrStdout(), "Tool", "Description", "Parameters")
			for _, tool := range app.Tools.All() {
				description := tool.DescriptionShort()
				if long {
					description = tool.DescriptionLong()
				}

				params := make([]string, len(tool.Parameters()))
				for i, p := range tool.Parameters() {
					params[i] = p.Name
				}
				t.AppendRow(table.Row{tool.Name(), description, strings.Join(params, "\n")})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show full descriptions")
	return cmd
}

func newMergeDirsCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge-dirs INPUT_DIR... --output DIR",
		Short: "Merge several data directories for one measure into one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool := services.NewMergeDirectoriesTool()
			tool.SetInputs(args)
			if err := tool.SetParameter("Output Directory", models.PathValue(output)); err != nil {
				return err
			}

			return runTool(cmd, tool)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newAggregateCommand() *cobra.Command {
	var input, output, measure, granularity string

	cmd := &cobra.Command{
		Use:   "aggregate --input DIR --output DIR --measure CODE --granularity NAME",
		Short: "Aggregate a data directory into a coarser granularity",
		Example: `  climatequery tools aggregate -i ./rainfall-daily -o ./rainfall-monthly \
    --measure Rainfall --granularity Monthly`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			tool, ok := app.Tools.New("Aggregate Data Directory")
			if !ok {
				return fmt.Errorf("aggregate tool is not registered")
			}

			for _, p := range []models.Parameter{
				{Name: "Input Directory", Value: models.PathValue(input)},
				{Name: "Output Directory", Value: models.PathValue(output)},
				{Name: "Datatype", Value: models.TextValue(measure)},
				{Name: "Aggregated Granularity", Value: models.TextValue(granularity)},
			} {
				if err := tool.SetParameter(p.Name, p.Value); err != nil {
					return err
				}
			}

			return runTool(cmd, tool)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input data directory")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory")
	cmd.Flags().StringVar(&measure, "measure", "", "Measurement code or name")
	cmd.Flags().StringVar(&granularity, "granularity", "", "Target granularity (Yearly, Monthly, Daily, ...)")
	for _, name := range []string{"input", "output", "measure", "granularity"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// runTool validates and executes tool, printing whole-percent progress to stderr
func runTool(cmd *cobra.Command, tool services.Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	last := -1
	err := tool.Execute(cmd.Context(), func(percent float64) {
		if p := int(percent); p != last {
			last = p
			fmt.Fprintf(stderr, "\r%s: %3d%%", tool.Name(), p)
		}
	})
	fmt.Fprintln(stderr)
	if err != nil {
		return err
	}

	printParameters(cmd.OutOrStdout(), tool)
	return nil
}

func printParameters(w io.Writer, tool services.Tool) {
	fmt.Fprintf(w, "%s completed\n", tool.Name())
	for _, p := range tool.Parameters() {
		fmt.Fprintf(w, "  %s: %s\n", p.Name, p.Value)
	}
}
