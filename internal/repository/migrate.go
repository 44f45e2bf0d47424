package repository

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/adamrehn/ClimateQuery/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migration directions accepted by Migrate
const (
	DirectionUp     = "up"
	DirectionDown   = "down"
	DirectionStatus = "status"
)

func configureGoose(db *database.DB) error {
	goose.SetBaseFS(migrations)

	dialect := "sqlite"
	if db.Driver() == database.DriverPostgres {
		dialect = "postgres"
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Migrate applies the catalog schema migrations in the given direction
func Migrate(db *database.DB, direction string) error {
	if err := configureGoose(db); err != nil {
		return err
	}

	var err error
	switch direction {
	case DirectionUp, "":
		err = goose.Up(db.DB().DB, "migrations")
	case DirectionDown:
		err = goose.Down(db.DB().DB, "migrations")
	case DirectionStatus:
		err = goose.Status(db.DB().DB, "migrations")
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}

	if err != nil {
		return fmt.Errorf("failed to run %s migrations: %w", direction, err)
	}
	return nil
}

// MigrationVersion returns the current schema version
func MigrationVersion(db *database.DB) (int64, error) {
	if err := configureGoose(db); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db.DB().DB)
}
