package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/parser"
	"github.com/adamrehn/ClimateQuery/internal/repository"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

const (
	rainfallLabel        = "Precipitation in the 24 hours before 9am (local time) in mm"
	rainfallQualityLabel = "Quality of precipitation value"
	solarLabel           = "Total daily global solar exposure - derived from satellite data in MJ.m-2"
	solarQualityLabel    = "Quality Flag (refer to notes)"
)

const notesText = "Notes for the supplied data\n" +
	"\n" +
	"SITE DETAILS FILE\n" +
	"  1-  2, 2,Record identifier\n" +
	"  4-  9, 6,Bureau of Meteorology Station Number.\n" +
	" 11- 50,40,Station Name.\n" +
	" 52- 55, 4,First year of data supplied in data file.\n" +
	" 57- 60, 4,Last year of data supplied in data file.\n"

var stationHeader = []string{
	"Record identifier",
	"Bureau of Meteorology Station Number",
	"Station Name",
	"First year of data supplied in data file",
	"Last year of data supplied in data file",
}

func testDeps() (*logging.StructuredLogger, *metrics.Collector) {
	logger := logging.NewStructuredLogger("climatequery-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger, metrics.NewCollectorWithRegistry("climatequery_test", prometheus.NewRegistry())
}

// dailyRows prefixes each [station, year, month, day, value, quality] record with a product code
func dailyRows(valueLabel, qualityLabel string, records ...[]string) [][]string {
	rows := [][]string{{"Product code", "Station Number", "Year", "Month", "Day", valueLabel, qualityLabel}}
	for _, r := range records {
		rows = append(rows, append([]string{"IDCJAC0009"}, r...))
	}
	return rows
}

// writeSourceDir writes a BOM source directory holding one data file per element of files,
// a station details file built from stations and a notes file
func writeSourceDir(t *testing.T, dir string, files [][][]string, stations [][]string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for i, rows := range files {
		name := filepath.Join(dir, "IDCJAC0009_"+string(rune('a'+i))+"_Data_1.txt")
		require.NoError(t, parser.WriteFixedWidthCSV(name, rows))
	}

	require.NoError(t, parser.WriteFixedWidthCSV(
		filepath.Join(dir, "IDCJAC0009_StnDet_1.txt"),
		append([][]string{stationHeader}, stations...),
	))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IDCJAC0009_Notes_1.txt"), []byte(notesText), 0o644))
	return dir
}

var defaultStations = [][]string{
	{"st", "009021", "PERTH AIRPORT", "1990", "2010"},
	{"st", "009034", "PERTH REGIONAL", "2005", "2010"},
}

func rainfallDir(t *testing.T, root string) string {
	return writeSourceDir(t, filepath.Join(root, "rainfall"), [][][]string{
		dailyRows(rainfallLabel, rainfallQualityLabel,
			[]string{"009021", "2000", "01", "01", "0.0", "Y"},
			[]string{"009021", "2000", "01", "02", "12.4", "Y"},
			[]string{"009021", "2001", "01", "01", "3.0", "Y"},
			[]string{"009034", "2000", "01", "01", "1.0", "Y"},
		),
		dailyRows(rainfallLabel, rainfallQualityLabel,
			[]string{"009021", "2000", "01", "03", "", "N"},
		),
	}, defaultStations)
}

func solarDir(t *testing.T, root string) string {
	return writeSourceDir(t, filepath.Join(root, "solar"), [][][]string{
		dailyRows(solarLabel, solarQualityLabel,
			[]string{"009021", "2000", "01", "01", "20.5", "Y"},
			[]string{"009021", "2000", "01", "02", "21.0", "N"},
			[]string{"009021", "2000", "01", "03", "19.0", "Y"},
		),
	}, defaultStations)
}

// sampleRequest asks for station 9021 in 2000, rainfall then solar exposure
func sampleRequest(t *testing.T, root string) *models.DataRequest {
	t.Helper()
	request, err := models.NewDataRequest(
		[]int{9021},
		[]models.MeasurementCode{models.Rainfall, models.SolarExposure},
		map[models.MeasurementCode]string{
			models.Rainfall:      rainfallDir(t, root),
			models.SolarExposure: solarDir(t, root),
		},
		2000,
		2000,
	)
	require.NoError(t, err)
	return request
}

func openMemory(t *testing.T) *database.DB {
	t.Helper()
	logger, collector := testDeps()
	db, err := database.Open(&database.Config{Driver: database.DriverSQLite, Path: database.MemoryPath}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestDatasetService wires a service over an in-memory catalog index and a temporary
// datasets directory
func newTestDatasetService(t *testing.T) (*DatasetService, string) {
	t.Helper()
	logger, collector := testDeps()

	catalog := openMemory(t)
	require.NoError(t, repository.Migrate(catalog, repository.DirectionUp))
	repo := repository.NewDatasetRepository(catalog, logger, collector)

	datasetsDir := filepath.Join(t.TempDir(), "datasets")
	service := NewDatasetService(repo, NewBuilder(logger, collector), datasetsDir, database.DefaultStoreOptions(), logger, collector)
	require.NoError(t, service.Open(context.Background()))
	return service, datasetsDir
}
