package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/parser"
	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

// DatasetTable is the name of the merged table every built store ends with
const DatasetTable = "dataset"

const (
	mergeTempTable = "tmergetemp"
	stagingSuffix  = "staging"
)

// Builder extracts BOM data files into a store and merges them into a single dataset table
type Builder struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewBuilder creates a new dataset builder
func NewBuilder(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Builder {
	return &Builder{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CodeTable returns the ingestion table name for a measurement code
func CodeTable(code models.MeasurementCode) string {
	return "t" + strconv.Itoa(int(code))
}

// RequestDataFiles discovers the data files of every code in the request
func RequestDataFiles(request *models.DataRequest) (map[models.MeasurementCode][]string, error) {
	files := make(map[models.MeasurementCode][]string, len(request.Codes))
	for _, code := range request.Codes {
		matches, err := parser.DataFiles(request.SourceDirs[code])
		if err != nil {
			return nil, err
		}
		files[code] = matches
	}
	return files, nil
}

// readHeader parses a data file and returns its rows with normalized field names
func readHeader(path string) ([][]string, error) {
	rows, err := parser.ParseBOM(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &models.ParseError{File: path, Message: "data file has no header row"}
	}

	parser.RenameFields(rows, parser.FieldReplacements)
	return rows, nil
}

// DetectGranularities reports the granularity of every code in the request, judged from the
// header of its first data file. files may be nil, in which case the files are discovered.
func (b *Builder) DetectGranularities(request *models.DataRequest, files map[models.MeasurementCode][]string) (map[models.MeasurementCode]models.Granularity, error) {
	if files == nil {
		var err error
		if files, err = RequestDataFiles(request); err != nil {
			return nil, err
		}
	}

	granularities := make(map[models.MeasurementCode]models.Granularity, len(request.Codes))
	for _, code := range request.Codes {
		rows, err := readHeader(files[code][0])
		if err != nil {
			return nil, err
		}
		granularities[code] = models.DetectGranularity(rows[0])
	}
	return granularities, nil
}

// DetectSingleGranularity returns the one granularity shared by every code in the request
func (b *Builder) DetectSingleGranularity(request *models.DataRequest, files map[models.MeasurementCode][]string) (models.Granularity, error) {
	granularities, err := b.DetectGranularities(request, files)
	if err != nil {
		return models.GranularityUnknown, err
	}

	detected := models.GranularityUnknown
	for i, code := range request.Codes {
		g := granularities[code]
		if i > 0 && g != detected {
			return models.GranularityUnknown, &models.ValidationError{
				Field:   "measurementCodes",
				Value:   code.String(),
				Message: "multiple granularities detected in the requested data",
			}
		}
		detected = g
	}
	return detected, nil
}

// Build runs the whole extraction into db: per-code tables are created and filled one file at a
// time, then merged into DatasetTable. progress may be nil. Cancellation of ctx is honoured
// between files.
func (b *Builder) Build(ctx context.Context, db *database.DB, request *models.DataRequest, progress models.ProgressFunc) (models.Granularity, error) {
	if progress == nil {
		progress = func(models.BuildProgress) {}
	}

	timer := b.metrics.NewTimer(b.metrics.BuildDuration)
	granularity, err := b.build(ctx, db, request, progress)
	elapsed := timer.ObserveDuration()

	if err != nil {
		b.metrics.RecordBuild("failed")
		b.logger.Error(ctx, "[BUILD_FAILED] Dataset build failed", logging.Fields{
			"codes":            request.Codes,
			"duration_seconds": elapsed.Seconds(),
		}, err)
		return models.GranularityUnknown, err
	}

	b.metrics.RecordBuild("completed")
	b.logger.Info(ctx, "[BUILD_COMPLETE] Dataset build completed", logging.Fields{
		"codes":            request.Codes,
		"granularity":      granularity.String(),
		"duration_seconds": elapsed.Seconds(),
	})
	return granularity, nil
}

func (b *Builder) build(ctx context.Context, db *database.DB, request *models.DataRequest, progress models.ProgressFunc) (models.Granularity, error) {
	if err := request.Validate(); err != nil {
		b.metrics.RecordBuildError("invalid_request")
		return models.GranularityUnknown, err
	}

	progress(models.BuildProgress{Phase: models.BuildStarted})

	files, err := RequestDataFiles(request)
	if err != nil {
		b.metrics.RecordBuildError("discovery")
		return models.GranularityUnknown, err
	}

	total := 0
	for _, code := range request.Codes {
		total += len(files[code])
	}

	granularity, err := b.DetectSingleGranularity(request, files)
	if err != nil {
		b.metrics.RecordBuildError("granularity")
		return models.GranularityUnknown, err
	}

	b.logger.Info(ctx, "[BUILD_START] Extracting data files", logging.Fields{
		"codes":       request.Codes,
		"files":       total,
		"granularity": granularity.String(),
		"stations":    len(request.Stations),
	})

	processed := 0
	for _, code := range request.Codes {
		err := b.extractCode(ctx, db, request, code, files[code], func() {
			processed++
			progress(models.BuildProgress{Phase: models.BuildProcessing, Processed: processed, Total: total})
		})
		if err != nil {
			b.metrics.RecordBuildError("extraction")
			return models.GranularityUnknown, err
		}
	}

	progress(models.BuildProgress{Phase: models.BuildMerging})

	if err := b.Merge(ctx, db, request.Codes, granularity); err != nil {
		b.metrics.RecordBuildError("merge")
		return models.GranularityUnknown, err
	}

	progress(models.BuildProgress{Phase: models.BuildCompleted})
	return granularity, nil
}

// extractCode creates the table for one code from its first file's header and sample rows,
// then inserts the filtered rows of each file in sequence
func (b *Builder) extractCode(ctx context.Context, db *database.DB, request *models.DataRequest, code models.MeasurementCode, files []string, tick func()) error {
	first, err := readHeader(files[0])
	if err != nil {
		return err
	}

	header := first[0]
	stationColumn := parser.ColumnIndex(header, "Station")
	yearColumn := parser.ColumnIndex(header, "Year")

	table := CodeTable(code)
	if err := db.CreateTableFromData(ctx, table, first, true); err != nil {
		return err
	}

	log := b.logger.WithFields(logging.Fields{
		"code":  int(code),
		"table": table,
	})

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()

		rows, err := readHeader(path)
		if err != nil {
			return err
		}

		kept := filterRows(rows[1:], request, stationColumn, yearColumn)
		if err := b.loadFile(ctx, db, table, kept); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}

		b.metrics.FilesProcessedTotal.Inc()
		b.metrics.RecordProcessingTime("extract_file", time.Since(start))
		log.Debug(ctx, "[BUILD_FILE] Data file extracted", logging.Fields{
			"file":      path,
			"rows_read": len(rows) - 1,
			"rows_kept": len(kept),
		})

		tick()
	}

	return nil
}

// loadFile batch-inserts rows into a staging clone of table, then moves them into table in one
// transaction, so table only ever holds whole files
func (b *Builder) loadFile(ctx context.Context, db *database.DB, table string, rows [][]string) error {
	staging := table + stagingSuffix
	if err := db.CloneStructure(ctx, table, staging); err != nil {
		return err
	}

	if err := db.BatchInsert(ctx, staging, rows); err != nil {
		if dropErr := db.DropTable(context.WithoutCancel(ctx), staging); dropErr != nil {
			b.logger.Warn(ctx, "[BUILD_STAGING] Failed to drop staging table", logging.Fields{
				"table": staging,
				"error": dropErr.Error(),
			})
		}
		return err
	}

	return db.InTx(ctx, "load_file", func(tx *database.DB) error {
		if err := tx.AppendTable(ctx, table, staging); err != nil {
			return err
		}
		return tx.DropTable(ctx, staging)
	})
}

// filterRows keeps the rows for the requested stations and years. When a filter is active,
// rows whose filtered field is not an integer are dropped.
func filterRows(rows [][]string, request *models.DataRequest, stationColumn, yearColumn int) [][]string {
	filterStations := len(request.Stations) > 0
	filterYears := !request.AllYears()
	if !filterStations && !filterYears {
		return rows
	}

	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		if filterStations {
			station, ok := intField(row, stationColumn)
			if !ok || !request.KeepsStation(station) {
				continue
			}
		}
		if filterYears {
			year, ok := intField(row, yearColumn)
			if !ok || !request.KeepsYear(year) {
				continue
			}
		}
		kept = append(kept, row)
	}
	return kept
}

func intField(row []string, column int) (int, bool) {
	if column < 0 || column >= len(row) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(row[column]))
	return n, err == nil
}

// Merge folds the per-code tables into DatasetTable, inner-joining them left to right on the
// common fields of granularity. Each pairwise join is stored under the right operand's table
// name, so the surviving table threads through the rightmost code before the final rename.
// Every step runs in its own transaction, so a failed step leaves both operands in place.
func (b *Builder) Merge(ctx context.Context, db *database.DB, codes []models.MeasurementCode, granularity models.Granularity) error {
	if len(codes) == 0 {
		return &models.ValidationError{Field: "measurementCodes", Message: "nothing to merge"}
	}

	joinFields := models.CommonFields(granularity)
	accumulated := CodeTable(codes[0])

	for _, code := range codes[1:] {
		right := CodeTable(code)

		left := accumulated
		err := db.InTx(ctx, "merge", func(tx *database.DB) error {
			if err := tx.JoinTables(ctx, left, right, mergeTempTable, joinFields); err != nil {
				return err
			}
			if err := tx.DropTable(ctx, left); err != nil {
				return err
			}
			if err := tx.DropTable(ctx, right); err != nil {
				return err
			}
			return tx.RenameTable(ctx, mergeTempTable, right)
		})
		if err != nil {
			return err
		}

		b.logger.Debug(ctx, "[BUILD_MERGE] Tables merged", logging.Fields{
			"left":        accumulated,
			"right":       right,
			"join_fields": joinFields,
		})
		accumulated = right
	}

	return db.RenameTable(ctx, accumulated, DatasetTable)
}
