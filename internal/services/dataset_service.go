package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/parser"
	"github.com/adamrehn/ClimateQuery/internal/query"
	"github.com/adamrehn/ClimateQuery/internal/repository"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

// ExportAllSQL is the query used when a dataset is exported without a catalog query
const ExportAllSQL = "SELECT * FROM " + DatasetTable

// DefaultStrayStoreAge is how long an unreferenced backing store must go unmodified before Open
// removes it. Younger files may belong to a build still running in another process.
const DefaultStrayStoreAge = 24 * time.Hour

// DatasetService manages the lifecycle of built datasets and their backing stores
type DatasetService struct {
	repo        repository.DatasetRepository
	builder     *Builder
	datasetsDir string
	store       database.StoreOptions
	strayAge    time.Duration
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// NewDatasetService creates a new dataset service storing backing files under datasetsDir
func NewDatasetService(repo repository.DatasetRepository, builder *Builder, datasetsDir string, store database.StoreOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DatasetService {
	return &DatasetService{
		repo:        repo,
		builder:     builder,
		datasetsDir: datasetsDir,
		store:       store,
		strayAge:    DefaultStrayStoreAge,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// Builder returns the builder used for new datasets
func (s *DatasetService) Builder() *Builder {
	return s.builder
}

// SetStrayStoreAge sets the minimum age of an unreferenced backing store before Open removes it
func (s *DatasetService) SetStrayStoreAge(age time.Duration) {
	s.strayAge = age
}

// Open prepares the datasets directory, drops index entries whose backing file has vanished and
// removes backing files that no entry references and nothing has written to for the stray age
func (s *DatasetService) Open(ctx context.Context) error {
	if err := os.MkdirAll(s.datasetsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create datasets directory: %w", err)
	}

	datasets, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	referenced := make(map[string]bool, len(datasets))
	for _, dataset := range datasets {
		if _, err := os.Stat(dataset.Database); errors.Is(err, os.ErrNotExist) {
			s.logger.Warn(ctx, "[DATASET_PRUNE] Backing store missing, dropping index entry", logging.Fields{
				"dataset_id": dataset.ID,
				"database":   dataset.Database,
			})
			if err := s.repo.Delete(ctx, dataset.ID); err != nil {
				return err
			}
			continue
		}
		referenced[filepath.Clean(dataset.Database)] = true
	}

	stray, err := filepath.Glob(filepath.Join(s.datasetsDir, "*.sqlite"))
	if err != nil {
		return fmt.Errorf("failed to list backing stores: %w", err)
	}
	now := time.Now()
	for _, path := range stray {
		if referenced[filepath.Clean(path)] {
			continue
		}

		modified, err := lastModified(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to inspect backing store: %w", err)
		}
		if now.Sub(modified) < s.strayAge {
			s.logger.Debug(ctx, "[DATASET_PRUNE] Skipping recent unreferenced backing store", logging.Fields{
				"database": path,
				"modified": modified.Format(time.RFC3339),
			})
			continue
		}

		s.logger.Warn(ctx, "[DATASET_PRUNE] Removing unreferenced backing store", logging.Fields{
			"database": path,
		})
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stray backing store: %w", err)
		}
	}

	return nil
}

// lastModified returns the latest modification time of a backing store and its journal files
func lastModified(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}

	latest := info.ModTime()
	for _, suffix := range []string{"-journal", "-wal"} {
		if info, err := os.Stat(path + suffix); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

// reserveDatabasePath creates an empty backing file named after the SHA-256 of the dataset
// name, creation timestamp and a counter, bumping the counter until the name is unused
func (s *DatasetService) reserveDatabasePath(name string, timestamp int64) (string, error) {
	for counter := 0; ; counter++ {
		sum := sha256.Sum256([]byte(name + strconv.FormatInt(timestamp, 10) + strconv.Itoa(counter)))
		path := filepath.Join(s.datasetsDir, hex.EncodeToString(sum[:])+".sqlite")

		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create backing store: %w", err)
		}
		return path, file.Close()
	}
}

func (s *DatasetService) openStore(path string) (*database.DB, error) {
	return database.Open(&database.Config{
		Driver: database.DriverSQLite,
		Path:   path,
		Store:  s.store,
	}, s.logger, s.metrics)
}

// Create builds a new persistent dataset and records it in the index. A failed build leaves
// no backing file behind.
func (s *DatasetService) Create(ctx context.Context, name string, request *models.DataRequest, progress models.ProgressFunc) (*models.Dataset, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &models.ValidationError{Field: "name", Message: "Dataset name must not be empty"}
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	createdAt := time.Now().UTC().Truncate(time.Second)
	path, err := s.reserveDatabasePath(name, createdAt.Unix())
	if err != nil {
		return nil, err
	}

	dataset, err := s.buildInto(ctx, path, name, request, createdAt, progress)
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			s.logger.Warn(ctx, "[DATASET_CLEANUP] Failed to remove partial backing store", logging.Fields{
				"database": path,
				"error":    removeErr.Error(),
			})
		}
		return nil, err
	}

	s.logger.Info(ctx, "[DATASET_CREATED] Dataset created", logging.Fields{
		"dataset_id":      dataset.ID,
		"name":            dataset.Name,
		"granularity":     dataset.Granularity.String(),
		"percent_present": dataset.PercentPresent,
	})
	return dataset, nil
}

func (s *DatasetService) buildInto(ctx context.Context, path, name string, request *models.DataRequest, createdAt time.Time, progress models.ProgressFunc) (*models.Dataset, error) {
	db, err := s.openStore(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	granularity, err := s.builder.Build(ctx, db, request, progress)
	if err != nil {
		return nil, err
	}

	percent, err := s.percentPresent(ctx, db, request.Codes)
	if err != nil {
		return nil, err
	}

	dataset := &models.Dataset{
		ID:             uuid.NewString(),
		Name:           name,
		Request:        *request,
		CreatedAt:      createdAt,
		Database:       path,
		Granularity:    granularity,
		PercentPresent: percent,
	}

	if err := s.repo.Create(ctx, dataset); err != nil {
		return nil, err
	}
	return dataset, nil
}

// CreateTemporary builds a dataset into an in-memory store. The caller owns the returned store.
func (s *DatasetService) CreateTemporary(ctx context.Context, request *models.DataRequest, progress models.ProgressFunc) (*database.DB, models.Granularity, error) {
	db, err := s.openStore(database.MemoryPath)
	if err != nil {
		return nil, models.GranularityUnknown, err
	}

	granularity, err := s.builder.Build(ctx, db, request, progress)
	if err != nil {
		db.Close()
		return nil, models.GranularityUnknown, err
	}
	return db, granularity, nil
}

// List returns every dataset in the index
func (s *DatasetService) List(ctx context.Context) ([]*models.Dataset, error) {
	return s.repo.List(ctx)
}

// Get returns one dataset
func (s *DatasetService) Get(ctx context.Context, id string) (*models.Dataset, error) {
	return s.repo.Get(ctx, id)
}

// Delete removes the dataset's backing store, then its index entry
func (s *DatasetService) Delete(ctx context.Context, id string) error {
	dataset, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := os.Remove(dataset.Database); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove backing store: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info(ctx, "[DATASET_DELETED] Dataset deleted", logging.Fields{
		"dataset_id": id,
		"name":       dataset.Name,
	})
	return nil
}

// qualityConditions returns one "= 'Y'" condition per quality field of codes that exists in
// the dataset table
func qualityConditions(ctx context.Context, db *database.DB, codes []models.MeasurementCode) ([]string, error) {
	fields, err := db.ListFields(ctx, DatasetTable)
	if err != nil {
		return nil, err
	}

	var conditions []string
	for _, code := range codes {
		for _, field := range code.QualityFields() {
			if slices.Contains(fields, field) {
				conditions = append(conditions, database.SanitiseName(field)+" = 'Y'")
			}
		}
	}
	return conditions, nil
}

// percentPresent is the share of rows whose quality flags are all 'Y', or 0 for an empty dataset
func (s *DatasetService) percentPresent(ctx context.Context, db *database.DB, codes []models.MeasurementCode) (float64, error) {
	conditions, err := qualityConditions(ctx, db, codes)
	if err != nil {
		return 0, err
	}
	if len(conditions) == 0 {
		return 0, nil
	}

	var total int64
	if err := db.GetContext(ctx, "count_rows", &total, "SELECT COUNT(*) FROM "+DatasetTable); err != nil {
		return 0, fmt.Errorf("failed to count dataset rows: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	var present int64
	query := "SELECT COUNT(*) FROM " + DatasetTable + " WHERE " + strings.Join(conditions, " AND ")
	if err := db.GetContext(ctx, "count_present", &present, query); err != nil {
		return 0, fmt.Errorf("failed to count quality rows: %w", err)
	}

	return float64(present) / float64(total) * 100.0, nil
}

type presenceRow struct {
	Station      int64 `db:"Station"`
	Year         int64 `db:"Year"`
	TotalPresent int64 `db:"TotalPresent"`
}

// PresenceReport returns, per station and year, the percentage of days with every quality flag 'Y'
func (s *DatasetService) PresenceReport(ctx context.Context, id string) (models.PresenceReport, error) {
	dataset, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	db, err := s.openStore(dataset.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	conditions, err := qualityConditions(ctx, db, dataset.Request.Codes)
	if err != nil {
		return nil, err
	}

	report := models.PresenceReport{}
	if len(conditions) == 0 {
		return report, nil
	}

	query := "SELECT Station, Year, COUNT(*) AS TotalPresent FROM " + DatasetTable +
		" WHERE " + strings.Join(conditions, " AND ") +
		" GROUP BY Station, Year ORDER BY Station, Year"

	var rows []presenceRow
	if err := db.SelectContext(ctx, "presence_report", &rows, query); err != nil {
		return nil, fmt.Errorf("failed to compute presence report: %w", err)
	}

	for _, row := range rows {
		station, year := int(row.Station), int(row.Year)
		if report[station] == nil {
			report[station] = map[int]float64{}
		}
		report[station][year] = float64(row.TotalPresent) / 365.0 * 100.0
	}
	return report, nil
}

// SupportedQueries returns the catalog queries that can run against the dataset
func (s *DatasetService) SupportedQueries(ctx context.Context, id string, catalog *query.Catalog) ([]*query.Query, error) {
	dataset, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return catalog.Supported(dataset), nil
}

// queryRows runs q, or ExportAllSQL when q is nil, against the dataset's backing store
func (s *DatasetService) queryRows(ctx context.Context, dataset *models.Dataset, q *query.Query) ([][]string, error) {
	db, err := s.openStore(dataset.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if q == nil {
		return db.QueryRows(ctx, "export", ExportAllSQL)
	}
	return db.QueryRows(ctx, "export_query", q.GenerateSQL(), q.Args()...)
}

// Export writes the whole dataset table to path as CSV
func (s *DatasetService) Export(ctx context.Context, id, path string) error {
	return s.ExportWithQuery(ctx, id, path, nil)
}

// ExportWithQuery writes the result of q to path as CSV, with a summary of the dataset and query
// alongside it in path + ".txt". A nil q exports the whole dataset table.
func (s *DatasetService) ExportWithQuery(ctx context.Context, id, path string, q *query.Query) error {
	dataset, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	rows, err := s.queryRows(ctx, dataset, q)
	if err != nil {
		return err
	}

	if err := parser.WriteCSVFile(path, rows); err != nil {
		return err
	}
	if err := WriteSummary(path+".txt", dataset, q); err != nil {
		return err
	}

	s.metrics.RecordExport("file", len(rows)-1)
	s.logger.Info(ctx, "[DATASET_EXPORT] Dataset exported", logging.Fields{
		"dataset_id": id,
		"path":       path,
		"rows":       len(rows) - 1,
	})
	return nil
}

// ExportTo writes the result of q as CSV to w. A nil q exports the whole dataset table.
func (s *DatasetService) ExportTo(ctx context.Context, id string, w io.Writer, q *query.Query) error {
	dataset, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	rows, err := s.queryRows(ctx, dataset, q)
	if err != nil {
		return err
	}

	if err := parser.WriteCSV(w, rows); err != nil {
		return err
	}

	s.metrics.RecordExport("stream", len(rows)-1)
	return nil
}
