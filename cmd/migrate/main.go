package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/adamrehn/ClimateQuery/internal/config"
	"github.com/adamrehn/ClimateQuery/internal/repository"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

func main() {
	direction := pflag.StringP("direction", "d", repository.DirectionUp, "Migration direction: up, down or status")
	pflag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Driver == database.DriverSQLite {
		if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create data directory: %v\n", err)
			os.Exit(1)
		}
	}

	logger := cfg.NewLogger("climatequery-migrate", "1.0.0")
	db, err := database.Open(cfg.DatabaseConfig(), logger, metrics.NewCollector(cfg.Metrics.Namespace))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s catalog index\n", db.Driver())
	fmt.Printf("Running %s migrations\n", *direction)

	if err := repository.Migrate(db, *direction); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	version, err := repository.MigrationVersion(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read schema version: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Migration completed successfully, schema version %d\n", version)
}
