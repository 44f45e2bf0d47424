package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"hermannm.dev/wrap"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/parser"
	"github.com/adamrehn/ClimateQuery/internal/query"
	"github.com/adamrehn/ClimateQuery/pkg/database"
)

// AggregatedRowsPerFile is the row count of each Aggregated_Data_<n>.txt output file
const AggregatedRowsPerFile = 1000

// QualityThreshold is the share of 'Y' flags above which an aggregated quality flag is 'Y'
const QualityThreshold = 0.75

const (
	paramInputDirectory = "Input Directory"
	paramMeasure        = "Datatype"
	paramGranularity    = "Aggregated Granularity"
)

// AggregateDirectoryTool rolls a directory of fine-grained data up into a coarser granularity
type AggregateDirectoryTool struct {
	datasets *DatasetService
	params   models.Parameters
}

// NewAggregateDirectoryTool returns the tool with empty parameters
func NewAggregateDirectoryTool(datasets *DatasetService) *AggregateDirectoryTool {
	return &AggregateDirectoryTool{
		datasets: datasets,
		params: models.Parameters{
			{Name: paramInputDirectory, Value: models.PathValue("")},
			{Name: paramOutputDir, Value: models.PathValue("")},
			{Name: paramMeasure, Value: models.TextValue("")},
			{Name: paramGranularity, Value: models.TextValue("")},
		},
	}
}

func (t *AggregateDirectoryTool) Name() string {
	return "Aggregate Data Directory"
}

func (t *AggregateDirectoryTool) DescriptionShort() string {
	return "Aggregates fine-grained data into a coarser time granularity."
}

func (t *AggregateDirectoryTool) DescriptionLong() string {
	return "This tool takes the data from one input directory and aggregates it using standard " +
		"aggregation metrics (min, max, mean, total) to produce data with a coarser time granularity."
}

func (t *AggregateDirectoryTool) Parameters() models.Parameters {
	return t.params.Clone()
}

func (t *AggregateDirectoryTool) SetParameter(name string, value models.Value) error {
	params, err := setToolParameter(t.Name(), t.params, name, value)
	if err != nil {
		return err
	}
	t.params = params
	return nil
}

func (t *AggregateDirectoryTool) Validate() error {
	if err := requireParameters(t.params); err != nil {
		return err
	}

	input := filepath.Clean(paramText(t.params, paramInputDirectory))
	output := filepath.Clean(paramText(t.params, paramOutputDir))
	if input == output {
		return &models.ValidationError{
			Field:   paramOutputDir,
			Value:   output,
			Message: "The input and output directories must be different",
		}
	}

	if _, err := models.ParseMeasurementCode(paramText(t.params, paramMeasure)); err != nil {
		return err
	}

	if g := models.ParseGranularity(paramText(t.params, paramGranularity)); !g.IsValid() {
		return &models.ValidationError{
			Field:   paramGranularity,
			Value:   paramText(t.params, paramGranularity),
			Message: "Unknown granularity " + paramText(t.params, paramGranularity),
		}
	}
	return nil
}

func (t *AggregateDirectoryTool) Execute(ctx context.Context, progress func(float64)) error {
	if progress == nil {
		progress = func(float64) {}
	}
	if err := t.Validate(); err != nil {
		return err
	}

	inputDir := paramText(t.params, paramInputDirectory)
	outputDir := paramText(t.params, paramOutputDir)
	code, _ := models.ParseMeasurementCode(paramText(t.params, paramMeasure))
	target := models.ParseGranularity(paramText(t.params, paramGranularity))

	request, err := models.NewDataRequest(
		models.AllStations,
		[]models.MeasurementCode{code},
		map[models.MeasurementCode]string{code: inputDir},
		models.AllYears,
		models.AllYears,
	)
	if err != nil {
		return err
	}

	input, err := t.datasets.Builder().DetectSingleGranularity(request, nil)
	if err != nil {
		return err
	}
	if !target.IsCoarserThan(input) {
		return &models.ValidationError{
			Field:   paramGranularity,
			Value:   target.String(),
			Message: "The target granularity must be coarser than the granularity of the input data",
		}
	}

	db, _, err := t.datasets.CreateTemporary(ctx, request, func(p models.BuildProgress) {
		percent := p.PercentComplete()
		if percent < 1.0 {
			percent = 0
		}
		progress(percent * 0.8)
	})
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := aggregate(ctx, db, input, target)
	if err != nil {
		return err
	}
	progress(90)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return wrap.Errorf(err, "failed to create output directory %s", outputDir)
	}

	header, data := rows[0], rows[1:]
	for n, batch := range database.SplitBatches(data, AggregatedRowsPerFile) {
		path := filepath.Join(outputDir, fmt.Sprintf("Aggregated_Data_%d.txt", n))
		if err := parser.WriteFixedWidthCSV(path, append([][]string{header}, batch...)); err != nil {
			return err
		}
	}

	stationList, err := parser.StationDetailsFile(inputDir)
	if err != nil {
		return err
	}
	if err := copyFile(stationList, filepath.Join(outputDir, filepath.Base(stationList))); err != nil {
		return err
	}

	notesFile, err := parser.NotesFile(inputDir)
	if err != nil {
		return err
	}
	if err := copyFile(notesFile, filepath.Join(outputDir, filepath.Base(notesFile))); err != nil {
		return err
	}

	progress(100)
	return nil
}

// aggregate groups the dataset table by the common fields of target. Every numeric data field
// becomes Min/Max/Average/Total columns and every quality field collapses to a single flag.
// The first returned row is the header.
func aggregate(ctx context.Context, db *database.DB, input, target models.Granularity) ([][]string, error) {
	columns, err := db.Columns(ctx, DatasetTable)
	if err != nil {
		return nil, err
	}

	keys := slices.Concat(models.CommonFields(input), models.CommonFields(target))

	var aggregated, quality []string
	for _, c := range columns {
		switch {
		case strings.HasPrefix(c.Name, "Quality"):
			quality = append(quality, c.Name)
		case !slices.Contains(keys, c.Name) && database.IsNumericType(c.Type):
			aggregated = append(aggregated, c.Name)
		}
	}

	var exprs []string
	for _, field := range aggregated {
		f := database.SanitiseName(field)
		exprs = append(exprs,
			"MIN("+f+") AS [Min"+field+"]",
			"MAX("+f+") AS [Max"+field+"]",
			"AVG("+f+") AS [Average"+field+"]",
			"TOTAL("+f+") AS [Total"+field+"]",
		)
	}
	for _, field := range quality {
		f := database.SanitiseName(field)
		exprs = append(exprs,
			"GROUP_CONCAT("+f+") AS [Values"+field+"]",
			"COUNT(*) AS [Count"+field+"]",
		)
	}
	if len(exprs) == 0 {
		return nil, &models.ValidationError{
			Field:   paramInputDirectory,
			Message: "The input data has no numeric or quality fields to aggregate",
		}
	}

	groupBy := models.CommonFields(target)
	q := &query.Query{Select: "SELECT " + strings.Join(exprs, ", ") + " FROM " + DatasetTable}
	if err := q.ApplyAggregation(groupBy, target); err != nil {
		return nil, err
	}

	result, err := db.QueryRows(ctx, "aggregate", q.GenerateSQL())
	if err != nil {
		return nil, err
	}

	valueColumns := len(groupBy) + 4*len(aggregated)
	header := slices.Concat(result[0][:valueColumns], quality)

	out := make([][]string, 0, len(result))
	out = append(out, header)
	for _, row := range result[1:] {
		processed := make([]string, 0, len(header))
		for _, value := range row[:valueColumns] {
			if value == "" {
				value = "0"
			}
			processed = append(processed, value)
		}

		for i := range quality {
			values := row[valueColumns+2*i]
			count := row[valueColumns+2*i+1]
			processed = append(processed, qualityFlag(values, count))
		}
		out = append(out, processed)
	}
	return out, nil
}

// qualityFlag reduces a comma-joined list of quality flags over count rows to 'Y' when more than
// QualityThreshold of them are 'Y'
func qualityFlag(values, count string) string {
	total, err := strconv.Atoi(count)
	if err != nil || total == 0 {
		return "N"
	}

	present := 0
	for _, flag := range strings.Split(values, ",") {
		if flag == "Y" {
			present++
		}
	}

	if float64(present)/float64(total) > QualityThreshold {
		return "Y"
	}
	return "N"
}
