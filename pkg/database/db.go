package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MemoryPath opens an ephemeral in-memory sqlite store
const MemoryPath = ":memory:"

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds database connection configuration
type Config struct {
	Driver string

	// Path is the sqlite database file, or MemoryPath
	Path string

	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	Store StoreOptions
}

// DB wraps sqlx.DB with monitoring and metrics. A handle passed to an InTx callback runs its
// statements on that transaction.
type DB struct {
	db      *sqlx.DB
	ext     sqlx.ExtContext
	inTx    bool
	driver  string
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config
	opts    StoreOptions
	stop    chan struct{}
}

// Open creates a new database connection for the configured driver
func Open(cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case DriverSQLite, "":
		db, err = openSQLite(cfg)
	case DriverPostgres:
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug(context.Background(), "[DB_INIT] Database connection established", logging.Fields{
		"driver":         db.DriverName(),
		"path":           cfg.Path,
		"host":           cfg.Host,
		"database":       cfg.Database,
		"max_open_conns": cfg.MaxOpenConns,
	})

	d := NewDB(db, logger, metricsCollector, cfg)
	d.stop = make(chan struct{})
	go d.monitorConnectionPool(d.stop)

	return d, nil
}

// NewDB wraps an already-open connection. Tests use it with sqlmock.
func NewDB(db *sqlx.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, cfg *Config) *DB {
	if cfg == nil {
		cfg = &Config{Driver: db.DriverName()}
	}

	return &DB{
		db:      db,
		ext:     db,
		driver:  db.DriverName(),
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
		opts:    cfg.Store.withDefaults(),
	}
}

func openSQLite(cfg *Config) (*sqlx.DB, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = MemoryPath
	}
	if dsn != MemoryPath {
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// An in-memory database lives only as long as its connection, so the pool holds exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	cfg.MaxOpenConns = 1

	return db, nil
}

func openPostgres(cfg *Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}

	d.logger.Debug(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{
		"driver": d.driver,
		"path":   d.config.Path,
	})
	return d.db.Close()
}

// DB returns the underlying sqlx.DB instance
func (d *DB) DB() *sqlx.DB {
	return d.db
}

// Driver returns the database driver name
func (d *DB) Driver() string {
	return d.driver
}

// Path returns the sqlite file backing this handle, if any
func (d *DB) Path() string {
	return d.config.Path
}

// Rebind converts '?' placeholders into the driver's bindvar syntax
func (d *DB) Rebind(query string) string {
	return d.db.Rebind(query)
}

func (d *DB) storeError(query string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StoreError{Statement: query, Err: err}
}

// QueryContext executes a query with context and metrics
func (d *DB) QueryContext(ctx context.Context, queryType, query string, args ...interface{}) (*sqlx.Rows, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		d.logger.Debug(ctx, "[DB_QUERY] Query executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
			"query":       query,
		})
	}()

	rows, err := d.ext.QueryxContext(ctx, query, args...)
	if err != nil {
		d.metrics.RecordDBError("query_error")
		d.logger.Error(ctx, "[DB_QUERY_ERROR] Query failed", logging.Fields{
			"query_type": queryType,
			"query":      query,
		}, err)
		return nil, d.storeError(query, err)
	}

	return rows, nil
}

// ExecContext executes a command with context and metrics
func (d *DB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		d.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	result, err := d.ext.ExecContext(ctx, query, args...)
	if err != nil {
		d.metrics.RecordDBError("exec_error")
		d.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, d.storeError(query, err)
	}

	return result, nil
}

// GetContext executes a query that returns a single row. sql.ErrNoRows is returned unwrapped.
func (d *DB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(timer).Seconds())
	}()

	err := sqlx.GetContext(ctx, d.ext, dest, query, args...)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}

	d.metrics.RecordDBError("get_error")
	d.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
		"query_type": queryType,
	}, err)
	return d.storeError(query, err)
}

// SelectContext executes a query that returns multiple rows
func (d *DB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(timer).Seconds())
	}()

	err := sqlx.SelectContext(ctx, d.ext, dest, query, args...)
	if err != nil {
		d.metrics.RecordDBError("select_error")
		d.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return d.storeError(query, err)
	}

	return nil
}

// BeginTx begins a new transaction. Postgres transactions are serializable; sqlite only
// offers its default isolation.
func (d *DB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	var opts *sql.TxOptions
	if d.driver == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	tx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		d.metrics.RecordDBError("transaction_begin_error")
		d.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return nil, d.storeError("BEGIN", err)
	}

	return tx, nil
}

// InTx runs fn with a handle bound to a new transaction, committing if fn succeeds and rolling
// back otherwise. fn must only use the handle it is given. Called on a handle that is already
// in a transaction, InTx runs fn on that transaction.
func (d *DB) InTx(ctx context.Context, operation string, fn func(tx *DB) error) error {
	if d.inTx {
		return fn(d)
	}

	tx, err := d.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	scoped := *d
	scoped.ext = tx
	scoped.inTx = true
	scoped.stop = nil

	if err := fn(&scoped); err != nil {
		d.logger.Debug(ctx, "[DB_TX_ROLLBACK] Transaction rolled back", logging.Fields{
			"operation": operation,
			"error":     err.Error(),
		})
		return err
	}

	if err := tx.Commit(); err != nil {
		d.metrics.RecordDBError("transaction_commit_error")
		d.logger.Error(ctx, "[DB_TX_ERROR] Failed to commit transaction", logging.Fields{
			"operation": operation,
		}, err)
		return d.storeError("COMMIT", err)
	}
	return nil
}

// monitorConnectionPool periodically updates connection pool metrics until stop is closed
func (d *DB) monitorConnectionPool(stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		stats := d.db.Stats()
		d.metrics.UpdateDBConnectionPool(stats.InUse, stats.Idle, stats.OpenConnections)

		if d.config.MaxOpenConns <= 0 {
			continue
		}

		utilization := float64(stats.InUse) / float64(d.config.MaxOpenConns)
		if utilization > 0.8 && d.driver == DriverPostgres {
			d.logger.Warn(context.Background(), "[DB_POOL_WARNING] Connection pool utilization high", logging.Fields{
				"in_use":      stats.InUse,
				"idle":        stats.Idle,
				"total":       stats.OpenConnections,
				"max_open":    d.config.MaxOpenConns,
				"utilization": fmt.Sprintf("%.2f%%", utilization*100),
			})
		}
	}
}

// HealthCheck performs a database health check
func (d *DB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
