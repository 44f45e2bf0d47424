package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/parser"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

// Validator checks a data request against the station details shipped with each source directory
type Validator struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	store   database.StoreOptions
}

// NewValidator creates a new request validator
func NewValidator(logger *logging.StructuredLogger, metricsCollector *metrics.Collector, store database.StoreOptions) *Validator {
	return &Validator{
		logger:  logger,
		metrics: metricsCollector,
		store:   store,
	}
}

// StationTable returns the name of the station details table for a measurement code
func StationTable(code models.MeasurementCode) string {
	return "stations_" + strconv.Itoa(int(code))
}

type stationSupport struct {
	Site      sql.NullInt64 `db:"Site"`
	Start     sql.NullInt64 `db:"Start"`
	End       sql.NullInt64 `db:"End"`
	Supported sql.NullBool  `db:"Supported"`
}

// Validate checks every (station, code) pair of the request. The request is valid only when
// every pair is supported; a request without stations is trivially valid.
func (v *Validator) Validate(ctx context.Context, request *models.DataRequest) (*models.ValidationReport, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	db, err := database.Open(&database.Config{
		Driver: database.DriverSQLite,
		Path:   database.MemoryPath,
		Store:  v.store,
	}, v.logger, v.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open station store: %w", err)
	}
	defer db.Close()

	if err := v.loadStationTables(ctx, db, request); err != nil {
		return nil, err
	}

	details := make([]models.ValidationReportItem, len(request.Stations)*len(request.Codes))

	g, gctx := errgroup.WithContext(ctx)
	for i, station := range request.Stations {
		for j, code := range request.Codes {
			slot := i*len(request.Codes) + j
			g.Go(func() error {
				item, err := v.checkPair(gctx, db, request, station, code)
				if err != nil {
					return err
				}
				details[slot] = item
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to validate request: %w", err)
	}

	valid := true
	for _, item := range details {
		valid = valid && item.Supported
	}
	v.metrics.RecordValidation(valid)

	v.logger.Info(ctx, "[VALIDATE] Data request validated", logging.Fields{
		"valid":    valid,
		"stations": len(request.Stations),
		"codes":    request.Codes,
	})

	return &models.ValidationReport{
		Valid:   valid,
		Request: *request,
		Details: details,
	}, nil
}

// loadStationTables loads the station details file of every requested code concurrently
func (v *Validator) loadStationTables(ctx context.Context, db *database.DB, request *models.DataRequest) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, code := range request.Codes {
		g.Go(func() error {
			return v.loadStationTable(gctx, db, code, request.SourceDirs[code])
		})
	}
	return g.Wait()
}

func (v *Validator) loadStationTable(ctx context.Context, db *database.DB, code models.MeasurementCode, dir string) error {
	path, err := parser.StationDetailsFile(dir)
	if err != nil {
		return err
	}

	rows, err := parser.ParseBOM(path)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &models.ParseError{File: path, Message: "station details file has no header row"}
	}

	parser.RenameFields(rows, parser.StationFieldReplacements)
	for _, required := range []string{"Site", "Start", "End"} {
		if parser.ColumnIndex(rows[0], required) < 0 {
			return &models.ParseError{File: path, Message: "station details file has no " + required + " column"}
		}
	}

	return db.CreateTableFromData(ctx, StationTable(code), rows, false)
}

// checkPair reports whether the station's supported year span covers the requested range.
// Unknown stations are unsupported with a zero span.
func (v *Validator) checkPair(ctx context.Context, db *database.DB, request *models.DataRequest, station int, code models.MeasurementCode) (models.ValidationReportItem, error) {
	item := models.ValidationReportItem{Station: station, Code: code}

	query := "SELECT Site, Start, [End], (Start <= ? AND [End] >= ?) AS Supported FROM " +
		database.SanitiseName(StationTable(code)) + " WHERE Site = ?"

	var row stationSupport
	err := db.GetContext(ctx, "validate_station", &row, query, request.StartYear, request.EndYear, station)
	if errors.Is(err, sql.ErrNoRows) {
		return item, nil
	}
	if err != nil {
		return item, err
	}

	item.Start = int(row.Start.Int64)
	item.End = int(row.End.Int64)
	item.Supported = request.AllYears() || (row.Supported.Valid && row.Supported.Bool)
	return item, nil
}
