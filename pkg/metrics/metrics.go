package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Dataset Build Metrics
	BuildsTotal         *prometheus.CounterVec
	BuildDuration       prometheus.Histogram
	BuildErrorsTotal    *prometheus.CounterVec
	FilesProcessedTotal prometheus.Counter
	RowsInsertedTotal   prometheus.Counter
	InsertBatchSize     prometheus.Histogram

	// Query Metrics
	ValidationsTotal *prometheus.CounterVec
	ExportsTotal     *prometheus.CounterVec
	ExportRows       prometheus.Histogram
	DatasetsStored   prometheus.Gauge

	// Database Metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec

	// System Metrics
	ProcessingTimeMS *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector registered with the default registry
func NewCollector(namespace string) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a metrics collector registered with reg
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		BuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dataset_builds_total",
				Help:      "Total number of dataset builds by outcome",
			},
			[]string{"outcome"},
		),

		BuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dataset_build_duration_seconds",
				Help:      "Duration of dataset builds in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		BuildErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dataset_build_errors_total",
				Help:      "Total number of dataset build errors by type",
			},
			[]string{"error_type"},
		),

		FilesProcessedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_files_processed_total",
				Help:      "Total number of BOM data files ingested",
			},
		),

		RowsInsertedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_inserted_total",
				Help:      "Total number of rows bulk-inserted into store tables",
			},
		),

		InsertBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "insert_batch_size",
				Help:      "Number of rows per multi-row insert statement",
				Buckets:   []float64{1, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_validations_total",
				Help:      "Total number of data request validations by result",
			},
			[]string{"result"},
		),

		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total number of CSV exports by kind",
			},
			[]string{"kind"},
		),

		ExportRows: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_rows",
				Help:      "Number of data rows per CSV export",
				Buckets:   []float64{10, 100, 1000, 10000, 100000, 1000000},
			},
		),

		DatasetsStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "datasets_stored",
				Help:      "Number of datasets in the catalog",
			},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),

		ProcessingTimeMS: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_time_milliseconds",
				Help:      "Processing time in milliseconds by operation",
				Buckets:   []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
			},
			[]string{"operation"},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordBuild increments the build counter for the given outcome
func (c *Collector) RecordBuild(outcome string) {
	c.BuildsTotal.WithLabelValues(outcome).Inc()
}

// RecordBuildError increments build error counter
func (c *Collector) RecordBuildError(errorType string) {
	c.BuildErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordInsertBatch records one multi-row insert of n rows
func (c *Collector) RecordInsertBatch(n int) {
	c.InsertBatchSize.Observe(float64(n))
	c.RowsInsertedTotal.Add(float64(n))
}

// RecordValidation increments the validation counter
func (c *Collector) RecordValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	c.ValidationsTotal.WithLabelValues(result).Inc()
}

// RecordExport records a completed CSV export
func (c *Collector) RecordExport(kind string, rows int) {
	c.ExportsTotal.WithLabelValues(kind).Inc()
	c.ExportRows.Observe(float64(rows))
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordProcessingTime records an operation duration in milliseconds
func (c *Collector) RecordProcessingTime(operation string, d time.Duration) {
	c.ProcessingTimeMS.WithLabelValues(operation).Observe(float64(d.Microseconds()) / 1000.0)
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
