package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

// DatasetRepository provides access to the persisted dataset catalog index
type DatasetRepository interface {
	Create(ctx context.Context, dataset *models.Dataset) error
	Get(ctx context.Context, id string) (*models.Dataset, error)
	List(ctx context.Context) ([]*models.Dataset, error)
	Delete(ctx context.Context, id string) error

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// datasetRow is the stored form of a catalog entry
type datasetRow struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	Request        string  `db:"request"`
	CreatedAt      int64   `db:"created_at"`
	DatabasePath   string  `db:"database_path"`
	Granularity    string  `db:"granularity"`
	PercentPresent float64 `db:"percent_present"`
}

func (row *datasetRow) toModel() (*models.Dataset, error) {
	var request models.DataRequest
	if err := json.Unmarshal([]byte(row.Request), &request); err != nil {
		return nil, fmt.Errorf("failed to decode request of dataset %s: %w", row.ID, err)
	}

	return &models.Dataset{
		ID:             row.ID,
		Name:           row.Name,
		Request:        request,
		CreatedAt:      time.Unix(row.CreatedAt, 0).UTC(),
		Database:       row.DatabasePath,
		Granularity:    models.ParseGranularity(row.Granularity),
		PercentPresent: row.PercentPresent,
	}, nil
}

// datasetRepository implements DatasetRepository
type datasetRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewDatasetRepository creates a new dataset repository
func NewDatasetRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) DatasetRepository {
	return &datasetRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const datasetColumns = `id, name, request, created_at, database_path, granularity, percent_present`

// Create persists a new catalog entry
func (r *datasetRepository) Create(ctx context.Context, dataset *models.Dataset) error {
	request, err := json.Marshal(dataset.Request)
	if err != nil {
		return fmt.Errorf("failed to encode dataset request: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO datasets (` + datasetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.ExecContext(ctx, "insert_dataset", query,
		dataset.ID,
		dataset.Name,
		string(request),
		dataset.CreatedAt.Unix(),
		dataset.Database,
		dataset.Granularity.String(),
		dataset.PercentPresent,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_DATASET] Dataset recorded", logging.Fields{
		"dataset_id": dataset.ID,
		"name":       dataset.Name,
	})

	return nil
}

// Get retrieves a catalog entry by ID
func (r *datasetRepository) Get(ctx context.Context, id string) (*models.Dataset, error) {
	query := r.db.Rebind(`SELECT ` + datasetColumns + ` FROM datasets WHERE id = ?`)

	var row datasetRow
	err := r.db.GetContext(ctx, "get_dataset", &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{
			Resource: "dataset",
			ID:       id,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	return row.toModel()
}

// List retrieves every catalog entry, oldest first
func (r *datasetRepository) List(ctx context.Context) ([]*models.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets ORDER BY created_at, name`

	var rows []datasetRow
	if err := r.db.SelectContext(ctx, "list_datasets", &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	datasets := make([]*models.Dataset, 0, len(rows))
	for i := range rows {
		dataset, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, dataset)
	}

	r.metrics.DatasetsStored.Set(float64(len(datasets)))
	return datasets, nil
}

// Delete removes a catalog entry
func (r *datasetRepository) Delete(ctx context.Context, id string) error {
	query := r.db.Rebind(`DELETE FROM datasets WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, "delete_dataset", query, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if affected == 0 {
		return &models.NotFoundError{
			Resource: "dataset",
			ID:       id,
		}
	}

	r.logger.Debug(ctx, "[REPO_DELETE_DATASET] Dataset removed", logging.Fields{
		"dataset_id": id,
	})

	return nil
}

// HealthCheck performs a health check on the repository
func (r *datasetRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
