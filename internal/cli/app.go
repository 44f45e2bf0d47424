package cli

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/adamrehn/ClimateQuery/internal/config"
	"github.com/adamrehn/ClimateQuery/internal/query"
	"github.com/adamrehn/ClimateQuery/internal/repository"
	"github.com/adamrehn/ClimateQuery/internal/services"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

// App holds the services a command runs against
type App struct {
	Config    *config.Config
	Logger    *logging.StructuredLogger
	Datasets  *services.DatasetService
	Validator *services.Validator
	Catalog   *query.Catalog
	Tools     *services.ToolRegistry

	index *database.DB
}

// Close releases the catalog index
func (a *App) Close() error {
	return a.index.Close()
}

// newApp opens the catalog index in the configured data directory and wires the services.
// Logs go to the command's stderr.
func newApp(cmd *cobra.Command) (*App, error) {
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := cfg.NewLogger("climatequery-cli", Version)
	logger.SetOutput(cmd.ErrOrStderr())
	collector := newCLICollector(cfg)

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	index, err := database.Open(cfg.DatabaseConfig(), logger, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog index: %w", err)
	}

	if err := repository.Migrate(index, repository.DirectionUp); err != nil {
		index.Close()
		return nil, err
	}

	datasets := services.NewDatasetService(
		repository.NewDatasetRepository(index, logger, collector),
		services.NewBuilder(logger, collector),
		cfg.DatasetsDir(),
		cfg.StoreOptions(),
		logger,
		collector,
	)
	datasets.SetStrayStoreAge(cfg.Data.StrayAge)
	if err := datasets.Open(cmd.Context()); err != nil {
		index.Close()
		return nil, err
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Datasets:  datasets,
		Validator: services.NewValidator(logger, collector, cfg.StoreOptions()),
		Catalog:   query.NewCatalog(),
		Tools:     services.NewToolRegistry(datasets),
		index:     index,
	}, nil
}

// newCLICollector keeps command metrics off the default registry, which nothing serves
func newCLICollector(cfg *config.Config) *metrics.Collector {
	return metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, prometheus.NewRegistry())
}
