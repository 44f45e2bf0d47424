package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/query"
	"github.com/adamrehn/ClimateQuery/internal/repository"
	"github.com/adamrehn/ClimateQuery/pkg/database"
)

func TestDatasetService_CreateAndQuery(t *testing.T) {
	ctx := context.Background()
	service, datasetsDir := newTestDatasetService(t)
	request := sampleRequest(t, t.TempDir())

	var last models.BuildProgress
	dataset, err := service.Create(ctx, "Perth 2000", request, func(p models.BuildProgress) { last = p })
	require.NoError(t, err)

	assert.Equal(t, models.BuildCompleted, last.Phase)
	assert.Equal(t, models.GranularityDay, dataset.Granularity)
	assert.InDelta(t, 100.0/3.0, dataset.PercentPresent, 1e-9)
	assert.Equal(t, datasetsDir, filepath.Dir(dataset.Database))
	assert.Equal(t, ".sqlite", filepath.Ext(dataset.Database))
	assert.FileExists(t, dataset.Database)

	stored, err := service.Get(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, dataset, stored)

	list, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	presence, err := service.PresenceReport(ctx, dataset.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0/365.0, presence[9021][2000], 1e-9)

	supported, err := service.SupportedQueries(ctx, dataset.ID, query.NewCatalog())
	require.NoError(t, err)
	assert.Len(t, supported, 8)
}

func TestDatasetService_Export(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestDatasetService(t)

	dataset, err := service.Create(ctx, "Perth 2000", sampleRequest(t, t.TempDir()), nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, service.Export(ctx, dataset.ID, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Station,Year,Month,Day,Rainfall,QualityRainfall,SolarExposure,QualitySolarExposure", lines[0])

	summary, err := os.ReadFile(out + ".txt")
	require.NoError(t, err)
	assert.Contains(t, string(summary), `Export of dataset "Perth 2000"`)
	assert.NotContains(t, string(summary), "Query details")

	q, ok := query.NewCatalog().Find("Total rainfall")
	require.True(t, ok)

	queried := filepath.Join(t.TempDir(), "total.csv")
	require.NoError(t, service.ExportWithQuery(ctx, dataset.ID, queried, q))
	data, err = os.ReadFile(queried)
	require.NoError(t, err)
	assert.Equal(t, "TotalRainfall\n12.4\n", string(data))

	summary, err = os.ReadFile(queried + ".txt")
	require.NoError(t, err)
	assert.Contains(t, string(summary), `with query "Total rainfall"`)
	assert.Contains(t, string(summary), "SELECT SUM(Rainfall) as TotalRainfall FROM dataset WHERE (Rainfall != '')")

	threshold, _ := query.NewCatalog().Find("Number of days with rainfall above threshold")
	require.NoError(t, threshold.SetParameter("$threshold", models.NumberValue(5)))
	require.NoError(t, threshold.ApplyAggregation([]string{"Station"}, models.GranularityDay))

	var buf bytes.Buffer
	require.NoError(t, service.ExportTo(ctx, dataset.ID, &buf, threshold))
	assert.Equal(t, "Station,NumDays\n9021,1\n", buf.String())
}

func TestDatasetService_Delete(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestDatasetService(t)

	dataset, err := service.Create(ctx, "Perth 2000", sampleRequest(t, t.TempDir()), nil)
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, dataset.ID))
	assert.NoFileExists(t, dataset.Database)

	var notFound *models.NotFoundError
	_, err = service.Get(ctx, dataset.ID)
	assert.True(t, errors.As(err, &notFound))

	err = service.Delete(ctx, dataset.ID)
	assert.True(t, errors.As(err, &notFound))
}

func TestDatasetService_FailedBuildLeavesNoFile(t *testing.T) {
	ctx := context.Background()
	service, datasetsDir := newTestDatasetService(t)

	request := &models.DataRequest{
		Codes:      []models.MeasurementCode{models.Rainfall},
		SourceDirs: map[models.MeasurementCode]string{models.Rainfall: t.TempDir()},
	}

	_, err := service.Create(ctx, "empty", request, nil)
	require.Error(t, err)

	files, err := filepath.Glob(filepath.Join(datasetsDir, "*.sqlite"))
	require.NoError(t, err)
	assert.Empty(t, files)

	list, err := service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = service.Create(ctx, " ", sampleRequest(t, t.TempDir()), nil)
	var validationErr *models.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestDatasetService_OpenPrunes(t *testing.T) {
	ctx := context.Background()
	service, datasetsDir := newTestDatasetService(t)

	kept, err := service.Create(ctx, "kept", sampleRequest(t, t.TempDir()), nil)
	require.NoError(t, err)
	lost, err := service.Create(ctx, "lost", sampleRequest(t, t.TempDir()), nil)
	require.NoError(t, err)
	assert.NotEqual(t, kept.Database, lost.Database)

	require.NoError(t, os.Remove(lost.Database))
	stray := filepath.Join(datasetsDir, "stray.sqlite")
	require.NoError(t, os.WriteFile(stray, nil, 0o644))
	old := time.Now().Add(-2 * DefaultStrayStoreAge)
	require.NoError(t, os.Chtimes(stray, old, old))

	require.NoError(t, service.Open(ctx))

	list, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)
	assert.NoFileExists(t, stray)
	assert.FileExists(t, kept.Database)
}

func TestDatasetService_OpenKeepsInFlightBuilds(t *testing.T) {
	ctx := context.Background()
	builder, datasetsDir := newTestDatasetService(t)

	reserved, err := builder.reserveDatabasePath("building", time.Now().Unix())
	require.NoError(t, err)

	logger, collector := testDeps()
	index := openMemory(t)
	require.NoError(t, repository.Migrate(index, repository.DirectionUp))
	other := NewDatasetService(repository.NewDatasetRepository(index, logger, collector),
		NewBuilder(logger, collector), datasetsDir, database.DefaultStoreOptions(), logger, collector)

	require.NoError(t, other.Open(ctx))
	assert.FileExists(t, reserved)

	// a journal written recently keeps an old backing file alive
	old := time.Now().Add(-2 * DefaultStrayStoreAge)
	require.NoError(t, os.Chtimes(reserved, old, old))
	require.NoError(t, os.WriteFile(reserved+"-journal", nil, 0o644))
	require.NoError(t, other.Open(ctx))
	assert.FileExists(t, reserved)

	require.NoError(t, os.Remove(reserved+"-journal"))
	other.SetStrayStoreAge(time.Hour)
	require.NoError(t, other.Open(ctx))
	assert.NoFileExists(t, reserved)
}

func TestDatasetService_ReserveDatabasePath(t *testing.T) {
	service, _ := newTestDatasetService(t)

	first, err := service.reserveDatabasePath("name", 1700000000)
	require.NoError(t, err)
	second, err := service.reserveDatabasePath("name", 1700000000)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Len(t, strings.TrimSuffix(filepath.Base(first), ".sqlite"), 64)
}

func TestDatasetService_CreateTemporary(t *testing.T) {
	ctx := context.Background()
	service, datasetsDir := newTestDatasetService(t)

	db, granularity, err := service.CreateTemporary(ctx, sampleRequest(t, t.TempDir()), nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, models.GranularityDay, granularity)

	var count int
	require.NoError(t, db.GetContext(ctx, "test", &count, "SELECT COUNT(*) FROM dataset"))
	assert.Equal(t, 3, count)

	files, _ := filepath.Glob(filepath.Join(datasetsDir, "*.sqlite"))
	assert.Empty(t, files)
}
