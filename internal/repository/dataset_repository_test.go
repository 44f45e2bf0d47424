package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

func testDeps() (*logging.StructuredLogger, *metrics.Collector) {
	logger := logging.NewStructuredLogger("climatequery-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger, metrics.NewCollectorWithRegistry("climatequery_test", prometheus.NewRegistry())
}

func newTestRepository(t *testing.T) DatasetRepository {
	t.Helper()
	logger, collector := testDeps()

	db, err := database.Open(&database.Config{Driver: database.DriverSQLite, Path: database.MemoryPath}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(db, DirectionUp))
	return NewDatasetRepository(db, logger, collector)
}

func sampleDataset(id, name string, created time.Time) *models.Dataset {
	return &models.Dataset{
		ID:   id,
		Name: name,
		Request: models.DataRequest{
			Stations:   []int{9021, 9034},
			Codes:      []models.MeasurementCode{models.Rainfall, models.SolarExposure},
			SourceDirs: map[models.MeasurementCode]string{models.Rainfall: "/data/rain", models.SolarExposure: "/data/solar"},
			StartYear:  1990,
			EndYear:    2000,
		},
		CreatedAt:      created,
		Database:       "/data/" + id + ".sqlite",
		Granularity:    models.GranularityDay,
		PercentPresent: 87.5,
	}
}

func TestDatasetRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := sampleDataset("a", "Perth rainfall", created)
	second := sampleDataset("b", "Perth solar", created.Add(time.Hour))

	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, first))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	require.NoError(t, repo.Delete(ctx, "a"))

	_, err = repo.Get(ctx, "a")
	var notFound *models.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "dataset", notFound.Resource)

	err = repo.Delete(ctx, "a")
	assert.True(t, errors.As(err, &notFound))

	assert.NoError(t, repo.HealthCheck(ctx))
}

func TestDatasetRepository_CreateSQL(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	logger, collector := testDeps()
	db := database.NewDB(sqlx.NewDb(mockDB, database.DriverPostgres), logger, collector, nil)
	repo := NewDatasetRepository(db, logger, collector)

	dataset := sampleDataset("a", "Perth rainfall", time.Unix(1700000000, 0).UTC())

	mock.ExpectExec(`INSERT INTO datasets \(id, name, request, created_at, database_path, granularity, percent_present\)\s+VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
		WithArgs("a", "Perth rainfall", sqlmock.AnyArg(), int64(1700000000), "/data/a.sqlite", "Daily", 87.5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), dataset))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_UnknownDirection(t *testing.T) {
	logger, collector := testDeps()
	db, err := database.Open(&database.Config{Driver: database.DriverSQLite, Path: database.MemoryPath}, logger, collector)
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, Migrate(db, "sideways"))

	require.NoError(t, Migrate(db, DirectionUp))
	version, err := MigrationVersion(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}
