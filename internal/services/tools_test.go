package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/parser"
	"github.com/adamrehn/ClimateQuery/pkg/database"
)

func TestToolRegistry(t *testing.T) {
	service, _ := newTestDatasetService(t)
	registry := NewToolRegistry(service)

	tools := registry.All()
	require.Len(t, tools, 2)
	assert.Equal(t, "Merge Data Directories", tools[0].Name())
	assert.Equal(t, "Aggregate Data Directory", tools[1].Name())

	tool, ok := registry.New("aggregate data directory")
	require.True(t, ok)
	assert.NotSame(t, tools[1], tool)

	_, ok = registry.New("Unknown")
	assert.False(t, ok)
}

func TestMergeDirectoriesTool_Validate(t *testing.T) {
	tool := NewMergeDirectoriesTool()

	var validationErr *models.ValidationError
	require.True(t, errors.As(tool.Validate(), &validationErr))

	require.NoError(t, tool.SetParameter("Output Directory", models.TextValue("/out")))
	tool.SetInputs([]string{"/a", "/b"})

	out, _ := tool.Parameters().Get("Output Directory")
	assert.Equal(t, models.KindPath, out.Kind())
	assert.NoError(t, tool.Validate())

	tool.AddInput()
	require.NoError(t, tool.SetParameter("Input Directory 3", models.PathValue("/a")))
	assert.Error(t, tool.Validate())

	tool.RemoveInput()
	assert.NoError(t, tool.Validate())
	assert.Len(t, tool.Parameters(), 3)

	assert.Error(t, tool.SetParameter("Input Directory 9", models.PathValue("/c")))
}

func TestMergeDirectoriesTool_Execute(t *testing.T) {
	root := t.TempDir()
	first := writeSourceDir(t, filepath.Join(root, "north"), [][][]string{
		dailyRows(rainfallLabel, rainfallQualityLabel, []string{"009021", "2000", "01", "01", "0.0", "Y"}),
	}, nil)
	second := writeSourceDir(t, filepath.Join(root, "south"), [][][]string{
		dailyRows(rainfallLabel, rainfallQualityLabel, []string{"009034", "2000", "01", "01", "1.0", "Y"}),
	}, nil)
	output := filepath.Join(root, "merged")

	// Raw station lists carry no header of their own
	require.NoError(t, parser.WriteFixedWidthCSV(filepath.Join(first, "IDCJAC0009_StnDet_1.txt"),
		[][]string{{"st", "009021", "PERTH NORTH", "1990", "2010"}}))
	require.NoError(t, parser.WriteFixedWidthCSV(filepath.Join(second, "IDCJAC0009_StnDet_1.txt"),
		[][]string{{"st", "009034", "PERTH SOUTH", "2005", "2010"}}))

	tool := NewMergeDirectoriesTool()
	tool.SetInputs([]string{first, second})
	require.NoError(t, tool.SetParameter("Output Directory", models.PathValue(output)))

	var progress []float64
	require.NoError(t, tool.Execute(context.Background(), func(p float64) { progress = append(progress, p) }))
	assert.Equal(t, 100.0, progress[len(progress)-1])

	assert.FileExists(t, filepath.Join(output, "north_IDCJAC0009_a_Data_1.txt"))
	assert.FileExists(t, filepath.Join(output, "south_IDCJAC0009_a_Data_1.txt"))
	assert.FileExists(t, filepath.Join(output, MergedNotesFile))

	stations, err := os.ReadFile(filepath.Join(output, MergedStationsFile))
	require.NoError(t, err)
	lines := strings.Split(string(stations), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(stationHeader, ","), lines[0])
	assert.Contains(t, lines[1], "009021")
	assert.Contains(t, lines[2], "009034")

	logger, collector := testDeps()
	validator := NewValidator(logger, collector, database.DefaultStoreOptions())
	request, err := models.NewDataRequest(
		[]int{9021, 9034},
		[]models.MeasurementCode{models.Rainfall},
		map[models.MeasurementCode]string{models.Rainfall: output},
		2006,
		2006,
	)
	require.NoError(t, err)

	report, err := validator.Validate(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestAggregateDirectoryTool_Execute(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestDatasetService(t)
	root := t.TempDir()

	input := writeSourceDir(t, filepath.Join(root, "daily"), [][][]string{
		dailyRows(rainfallLabel, rainfallQualityLabel,
			[]string{"009021", "2000", "01", "01", "1", "Y"},
			[]string{"009021", "2000", "01", "02", "2", "Y"},
			[]string{"009021", "2000", "01", "03", "3", "Y"},
			[]string{"009021", "2000", "01", "04", "6", "N"},
			[]string{"009021", "2000", "02", "01", "5", "Y"},
		),
	}, defaultStations)
	output := filepath.Join(root, "monthly")

	tool := NewAggregateDirectoryTool(service)
	require.NoError(t, tool.SetParameter("Input Directory", models.TextValue(input)))
	require.NoError(t, tool.SetParameter("Output Directory", models.TextValue(output)))
	require.NoError(t, tool.SetParameter("Datatype", models.TextValue("Rainfall")))
	require.NoError(t, tool.SetParameter("Aggregated Granularity", models.TextValue("Monthly")))

	var progress []float64
	require.NoError(t, tool.Execute(ctx, func(p float64) { progress = append(progress, p) }))
	assert.Equal(t, 100.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}

	rows, err := parser.ParseBOM(filepath.Join(output, "Aggregated_Data_0.txt"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Station", "Year", "Month", "MinRainfall", "MaxRainfall", "AverageRainfall", "TotalRainfall", "QualityRainfall"},
		{"9021", "2000", "1", "1", "6", "3", "12", "N"},
		{"9021", "2000", "2", "5", "5", "5", "5", "Y"},
	}, rows)

	assert.FileExists(t, filepath.Join(output, "IDCJAC0009_StnDet_1.txt"))
	assert.FileExists(t, filepath.Join(output, "IDCJAC0009_Notes_1.txt"))

	granularities, err := service.Builder().DetectGranularities(&models.DataRequest{
		Codes:      []models.MeasurementCode{models.Rainfall},
		SourceDirs: map[models.MeasurementCode]string{models.Rainfall: output},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.GranularityMonth, granularities[models.Rainfall])
}

func TestAggregateDirectoryTool_RejectsFinerTarget(t *testing.T) {
	service, _ := newTestDatasetService(t)
	root := t.TempDir()

	tool := NewAggregateDirectoryTool(service)
	require.NoError(t, tool.SetParameter("Input Directory", models.PathValue(rainfallDir(t, root))))
	require.NoError(t, tool.SetParameter("Output Directory", models.PathValue(filepath.Join(root, "out"))))
	require.NoError(t, tool.SetParameter("Datatype", models.TextValue("136")))
	require.NoError(t, tool.SetParameter("Aggregated Granularity", models.TextValue("Hourly")))

	var validationErr *models.ValidationError
	assert.True(t, errors.As(tool.Execute(context.Background(), nil), &validationErr))
	assert.NoDirExists(t, filepath.Join(root, "out"))

	require.NoError(t, tool.SetParameter("Aggregated Granularity", models.TextValue("Fortnightly")))
	assert.Error(t, tool.Validate())
}

func TestQualityFlag(t *testing.T) {
	tests := []struct {
		values, count, want string
	}{
		{"Y,Y,Y,Y", "4", "Y"},
		{"Y,Y,Y,N", "4", "N"},
		{"Y,Y,Y,Y,N", "5", "Y"},
		{"", "0", "N"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, qualityFlag(tt.values, tt.count), tt.values)
	}
}
