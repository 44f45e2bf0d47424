package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adamrehn/ClimateQuery/internal/config"
	"github.com/adamrehn/ClimateQuery/internal/handlers"
	"github.com/adamrehn/ClimateQuery/internal/query"
	"github.com/adamrehn/ClimateQuery/internal/repository"
	"github.com/adamrehn/ClimateQuery/internal/services"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger("climatequery-api", version)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting ClimateQuery API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"data_dir":    cfg.Data.Dir,
	})

	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace)

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to create data directory", logging.Fields{"data_dir": cfg.Data.Dir}, err)
	}

	db, err := database.Open(cfg.DatabaseConfig(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open catalog index", logging.Fields{}, err)
	}
	defer db.Close()

	if err := repository.Migrate(db, repository.DirectionUp); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to migrate catalog index", logging.Fields{}, err)
	}

	datasetRepo := repository.NewDatasetRepository(db, logger, metricsCollector)

	datasetService := services.NewDatasetService(
		datasetRepo,
		services.NewBuilder(logger, metricsCollector),
		cfg.DatasetsDir(),
		cfg.StoreOptions(),
		logger,
		metricsCollector,
	)
	datasetService.SetStrayStoreAge(cfg.Data.StrayAge)
	if err := datasetService.Open(ctx); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open datasets directory", logging.Fields{
			"datasets_dir": cfg.DatasetsDir(),
		}, err)
	}
	validator := services.NewValidator(logger, metricsCollector, cfg.StoreOptions())

	datasetHandler := handlers.NewDatasetHandler(datasetService, validator, query.NewCatalog(), logger, metricsCollector)

	router := mux.NewRouter()
	datasetHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Builds run inside requests, so allow in-flight ones time to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
