package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/parser"
	"github.com/adamrehn/ClimateQuery/internal/query"
)

func TestRequestFlags_Build(t *testing.T) {
	flags := requestFlags{
		stations:  []int{9021},
		measures:  []string{"Solar Exposure=/data/solar", "136=/data/rain"},
		startYear: 2000,
		endYear:   2001,
	}

	request, err := flags.build()
	require.NoError(t, err)
	assert.Equal(t, []models.MeasurementCode{models.SolarExposure, models.Rainfall}, request.Codes)
	assert.Equal(t, "/data/rain", request.SourceDirs[models.Rainfall])
	assert.Equal(t, []int{9021}, request.Stations)

	tests := []struct {
		name     string
		measures []string
	}{
		{"no measures", nil},
		{"missing dir", []string{"136"}},
		{"empty dir", []string{"136= "}},
		{"unknown code", []string{"999=/data"}},
		{"duplicate", []string{"136=/a", "Rainfall=/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&requestFlags{measures: tt.measures}).build()
			var validationErr *models.ValidationError
			assert.True(t, errors.As(err, &validationErr), "got %v", err)
		})
	}
}

func TestParseYearMonth(t *testing.T) {
	year, month, err := parseYearMonth("2000-03", 1)
	require.NoError(t, err)
	assert.Equal(t, 2000, year)
	assert.Equal(t, 3, month)

	year, month, err = parseYearMonth("2004", 12)
	require.NoError(t, err)
	assert.Equal(t, 2004, year)
	assert.Equal(t, 12, month)

	for _, bad := range []string{"", "twenty", "2000-13", "2000-0", "2000-x"} {
		_, _, err := parseYearMonth(bad, 1)
		assert.Error(t, err, bad)
	}
}

func TestExportFlags_Prepare(t *testing.T) {
	catalog := query.NewCatalog()
	dataset := &models.Dataset{
		Name:        "Perth",
		Request:     models.DataRequest{Codes: []models.MeasurementCode{models.Rainfall}},
		Granularity: models.GranularityDay,
	}

	q, err := (&exportFlags{}).prepare(catalog, dataset)
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = (&exportFlags{groupBy: []string{"Station"}}).prepare(catalog, dataset)
	assert.Error(t, err)

	q, err = (&exportFlags{
		query:   "number of days with rainfall above threshold",
		params:  []string{"threshold=10"},
		from:    "2000",
		to:      "2004-06",
		groupBy: []string{"Station", "Year", "station"},
	}).prepare(catalog, dataset)
	require.NoError(t, err)

	threshold, ok := q.Parameters.Get("$threshold")
	require.True(t, ok)
	n, _ := threshold.Number()
	assert.Equal(t, 10.0, n)

	end, ok := q.Parameters.Get(query.ParamDecimalYearEnd)
	require.True(t, ok)
	n, _ = end.Number()
	assert.InDelta(t, 2004+5.0/12.0, n, 1e-9)
	assert.Equal(t, []string{"Station", "Year"}, q.GroupBy)

	tests := []exportFlags{
		{query: "Nope"},
		{query: "Average daily solar exposure"},
		{query: "Total rainfall", params: []string{"threshold=1"}},
		{query: "Number of days with rainfall above threshold", params: []string{"threshold=ten"}},
		{query: "Total rainfall", params: []string{"=1"}},
		{query: "Total rainfall", from: "2000"},
		{query: "Total rainfall", from: "2004", to: "2000"},
		{query: "Total rainfall", groupBy: []string{"Rainfall"}},
		{query: "Total rainfall", groupBy: []string{"Station) AS x, sqlite_version() AS v FROM dataset --"}},
	}
	for _, flags := range tests {
		_, err := flags.prepare(catalog, dataset)
		assert.Error(t, err, "%+v", flags)
	}
}

const notesText = "Notes for the supplied data\n" +
	"\n" +
	"SITE DETAILS FILE\n" +
	"  1-  2, 2,Record identifier\n" +
	"  4-  9, 6,Bureau of Meteorology Station Number.\n" +
	" 11- 50,40,Station Name.\n" +
	" 52- 55, 4,First year of data supplied in data file.\n" +
	" 57- 60, 4,Last year of data supplied in data file.\n"

func writeRainfallDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, parser.WriteFixedWidthCSV(filepath.Join(dir, "IDCJAC0009_009021_Data_1.txt"), [][]string{
		{"Product code", "Station Number", "Year", "Month", "Day", "Precipitation in the 24 hours before 9am (local time) in mm", "Quality of precipitation value"},
		{"IDCJAC0009", "009021", "2000", "01", "01", "0.0", "Y"},
		{"IDCJAC0009", "009021", "2000", "01", "02", "12.4", "Y"},
	}))
	require.NoError(t, parser.WriteFixedWidthCSV(filepath.Join(dir, "IDCJAC0009_StnDet_1.txt"), [][]string{
		{"Record identifier", "Bureau of Meteorology Station Number", "Station Name", "First year of data supplied in data file", "Last year of data supplied in data file"},
		{"st", "009021", "PERTH AIRPORT", "1990", "2010"},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IDCJAC0009_Notes_1.txt"), []byte(notesText), 0o644))
	return dir
}

// execute runs the CLI against dataDir and returns stdout
func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))

	err := cmd.Execute()
	return stdout.String(), err
}

var uuidPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func TestCommands_DatasetLifecycle(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "")
	dataDir := t.TempDir()
	source := writeRainfallDir(t)

	out, err := execute(t, dataDir, "build", "Perth", "-s", "9021", "-m", "Rainfall="+source, "--start-year", "2000", "--end-year", "2000")
	require.NoError(t, err)
	assert.Contains(t, out, "Perth")
	assert.Contains(t, out, "Daily")

	out, err = execute(t, dataDir, "datasets", "list")
	require.NoError(t, err)
	id := uuidPattern.FindString(out)
	require.NotEmpty(t, id, out)

	out, err = execute(t, dataDir, "export", id, "-", "-q", "Total rainfall")
	require.NoError(t, err)
	assert.Equal(t, "TotalRainfall\n12.4\n", out)

	out, err = execute(t, dataDir, "export", id, "-", "-q", "Total rainfall", "--group-by", "Station,Year,Station")
	require.NoError(t, err)
	assert.Equal(t, "Station,Year,TotalRainfall\n9021,2000,12.4\n", out)

	_, err = execute(t, dataDir, "export", id, "-", "-q", "Total rainfall", "--group-by", "Rainfall")
	var validationErr *models.ValidationError
	assert.True(t, errors.As(err, &validationErr), "got %v", err)

	file := filepath.Join(t.TempDir(), "perth.csv")
	_, err = execute(t, dataDir, "export", id, file)
	require.NoError(t, err)
	assert.FileExists(t, file)
	assert.FileExists(t, file+".txt")

	out, err = execute(t, dataDir, "datasets", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, `Export of dataset "Perth"`)
	assert.Contains(t, out, "Percent present: 100.00")

	out, err = execute(t, dataDir, "datasets", "presence", id)
	require.NoError(t, err)
	assert.Contains(t, out, "9021")
	assert.Contains(t, out, "0.55")

	out, err = execute(t, dataDir, "queries", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Total rainfall")
	assert.NotContains(t, out, "Average daily solar exposure")

	_, err = execute(t, dataDir, "datasets", "delete", id)
	require.NoError(t, err)

	out, err = execute(t, dataDir, "datasets", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "(no datasets)")

	_, err = execute(t, dataDir, "datasets", "show", id)
	var notFound *models.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestCommands_Validate(t *testing.T) {
	dataDir := t.TempDir()
	source := writeRainfallDir(t)

	out, err := execute(t, dataDir, "validate", "-s", "9021", "-m", "136="+source, "--start-year", "2000", "--end-year", "2001")
	require.NoError(t, err)
	assert.Contains(t, out, "Request is supported")

	out, err = execute(t, dataDir, "validate", "-s", "9021", "-s", "1234", "-m", "136="+source)
	assert.ErrorIs(t, err, errRequestUnsupported)
	assert.Contains(t, out, "1234")

	_, err = execute(t, dataDir, "build", "Bad", "-s", "1234", "-m", "136="+source)
	assert.ErrorIs(t, err, errRequestUnsupported)
}

func TestCommands_VersionAndTools(t *testing.T) {
	dataDir := t.TempDir()

	out, err := execute(t, dataDir, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ClimateQuery v"+Version)

	out, err = execute(t, dataDir, "tools", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Merge Data Directories")
	assert.Contains(t, out, "Aggregate Data Directory")

	out, err = execute(t, dataDir, "queries")
	require.NoError(t, err)
	assert.Contains(t, out, "Average daily solar exposure")
}
