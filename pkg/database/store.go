package database

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/adamrehn/ClimateQuery/pkg/logging"
)

// Column types assigned by inference
const (
	TypeNumeric = "NUMERIC"
	TypeText    = "TEXT"
)

// StoreOptions tunes the table-building operations
type StoreOptions struct {
	// MaxParams is the engine's bound-parameter ceiling per statement
	MaxParams int
	// InsertConcurrency caps the number of insert batches in flight
	InsertConcurrency int
	// InferenceWindow is the number of rows sampled per step of type inference
	InferenceWindow int
}

// DefaultStoreOptions matches sqlite's default SQLITE_MAX_VARIABLE_NUMBER
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		MaxParams:         999,
		InsertConcurrency: 4,
		InferenceWindow:   10,
	}
}

func (o StoreOptions) withDefaults() StoreOptions {
	defaults := DefaultStoreOptions()
	if o.MaxParams <= 0 {
		o.MaxParams = defaults.MaxParams
	}
	if o.InsertConcurrency <= 0 {
		o.InsertConcurrency = defaults.InsertConcurrency
	}
	if o.InferenceWindow <= 0 {
		o.InferenceWindow = defaults.InferenceWindow
	}
	return o
}

// Column describes one column of an existing table
type Column struct {
	Name string `db:"name"`
	Type string `db:"type"`
}

var unsafeNameChars = regexp.MustCompile(`[\s'"()\[\]]`)

// SanitiseName makes a table or column name safe to splice into SQL text, since identifiers
// cannot be bound as parameters. Sanitising an already sanitised name is a no-op.
func SanitiseName(name string) string {
	return "[" + unsafeNameChars.ReplaceAllString(name, "") + "]"
}

// IsNumericType reports whether a declared column type has numeric affinity. CREATE TABLE AS
// reports NUMERIC columns as NUM.
func IsNumericType(declared string) bool {
	switch strings.ToUpper(declared) {
	case "NUM", TypeNumeric, "INT", "INTEGER", "REAL", "FLOAT", "DOUBLE":
		return true
	default:
		return false
	}
}

// IsNumeric reports whether s is a finite decimal number
func IsNumeric(s string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// InferColumnTypes classifies each of ncols columns of rows (header excluded) as NUMERIC or TEXT.
// Each column is sampled one window of rows at a time, moving forward a window at a time until a
// window holds a non-empty value. A column is NUMERIC only if every sampled non-empty value is
// numeric; a column with no non-empty samples is TEXT.
func InferColumnTypes(rows [][]string, ncols, window int) []string {
	if window <= 0 {
		window = DefaultStoreOptions().InferenceWindow
	}

	types := make([]string, ncols)
	for col := 0; col < ncols; col++ {
		offset := 0
		samples := sampleColumn(rows, col, offset, window)
		for len(samples) == 0 && offset < len(rows)+1-window {
			offset += window
			samples = sampleColumn(rows, col, offset, window)
		}

		types[col] = TypeText
		if len(samples) > 0 && allNumeric(samples) {
			types[col] = TypeNumeric
		}
	}
	return types
}

func sampleColumn(rows [][]string, col, offset, window int) []string {
	if offset >= len(rows) {
		return nil
	}

	end := min(offset+window, len(rows))
	var samples []string
	for _, row := range rows[offset:end] {
		if col < len(row) && row[col] != "" {
			samples = append(samples, row[col])
		}
	}
	return samples
}

func allNumeric(values []string) bool {
	for _, v := range values {
		if !IsNumeric(v) {
			return false
		}
	}
	return true
}

// BatchSize is the number of rows per insert statement that keeps the bound parameter count
// within maxParams.
func BatchSize(maxParams, columns int) int {
	if columns <= 0 {
		return 0
	}
	return max(maxParams/columns, 1)
}

// SplitBatches partitions rows into consecutive chunks of at most size rows
func SplitBatches(rows [][]string, size int) [][][]string {
	if size <= 0 {
		return nil
	}

	batches := make([][][]string, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		batches = append(batches, rows[start:min(start+size, len(rows))])
	}
	return batches
}

// CreateTableFromData creates table from data, whose first row is the header. Column types are
// inferred from the remaining rows, which are then inserted unless createOnly is set.
func (d *DB) CreateTableFromData(ctx context.Context, table string, data [][]string, createOnly bool) error {
	if len(data) == 0 {
		return fmt.Errorf("failed to create table %s: no header row", table)
	}

	header, rows := data[0], data[1:]
	types := InferColumnTypes(rows, len(header), d.opts.InferenceWindow)

	decls := make([]string, len(header))
	for i, field := range header {
		decls[i] = SanitiseName(field) + " " + types[i]
	}

	query := "CREATE TABLE " + SanitiseName(table) + " (" + strings.Join(decls, ", ") + ")"
	if _, err := d.ExecContext(ctx, "create_table", query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	d.logger.Debug(ctx, "[STORE_CREATE] Table created", logging.Fields{
		"table":   table,
		"columns": len(header),
	})

	if createOnly {
		return nil
	}
	return d.BatchInsert(ctx, table, rows)
}

// BatchInsert inserts rows into table using multi-row INSERT statements sized to the
// parameter ceiling. Batches run concurrently; all must finish before BatchInsert returns.
func (d *DB) BatchInsert(ctx context.Context, table string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	columns := len(rows[0])
	batches := SplitBatches(rows, BatchSize(d.opts.MaxParams, columns))
	target := SanitiseName(table)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.InsertConcurrency)

	for _, batch := range batches {
		g.Go(func() error {
			return d.insertBatch(gctx, target, columns, batch)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

func (d *DB) insertBatch(ctx context.Context, target string, columns int, batch [][]string) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", columns), ",") + ")"

	var query strings.Builder
	query.WriteString("INSERT INTO ")
	query.WriteString(target)
	query.WriteString(" VALUES ")

	args := make([]interface{}, 0, len(batch)*columns)
	for i, row := range batch {
		if len(row) != columns {
			return fmt.Errorf("row has %d fields, expected %d", len(row), columns)
		}
		if i > 0 {
			query.WriteString(",")
		}
		query.WriteString(placeholder)
		for _, field := range row {
			args = append(args, field)
		}
	}

	if _, err := d.ExecContext(ctx, "batch_insert", query.String(), args...); err != nil {
		return err
	}

	d.metrics.RecordInsertBatch(len(batch))
	return nil
}

// Columns returns the name and declared type of every column of table, in table order
func (d *DB) Columns(ctx context.Context, table string) ([]Column, error) {
	query := "PRAGMA table_info(" + SanitiseName(table) + ")"

	rows, err := d.QueryContext(ctx, "table_info", query)
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid        int
			name, kind string
			notNull    int
			defaultVal interface{}
			pk         int
		)
		if err := rows.Scan(&cid, &name, &kind, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		columns = append(columns, Column{Name: name, Type: kind})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}

	return columns, nil
}

// ListFields returns the column names of table
func (d *DB) ListFields(ctx context.Context, table string) ([]string, error) {
	columns, err := d.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	fields := make([]string, len(columns))
	for i, c := range columns {
		fields[i] = c.Name
	}
	return fields, nil
}

// TableExists reports whether table is present in the store
func (d *DB) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	name := strings.Trim(SanitiseName(table), "[]")
	if err := d.GetContext(ctx, "table_exists", &count, query, name); err != nil {
		return false, fmt.Errorf("failed to check for table %s: %w", table, err)
	}
	return count == 1, nil
}

// CloneStructure creates clone with the same columns and types as orig, without data
func (d *DB) CloneStructure(ctx context.Context, orig, clone string) error {
	columns, err := d.Columns(ctx, orig)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("failed to clone %s: table has no columns", orig)
	}

	decls := make([]string, len(columns))
	for i, c := range columns {
		decls[i] = SanitiseName(c.Name) + " " + c.Type
	}

	query := "CREATE TABLE " + SanitiseName(clone) + " (" + strings.Join(decls, ", ") + ")"
	if _, err := d.ExecContext(ctx, "clone_table", query); err != nil {
		return fmt.Errorf("failed to clone %s into %s: %w", orig, clone, err)
	}
	return nil
}

// AppendTable copies every row of source into dest. Both must have the same columns in the same order.
func (d *DB) AppendTable(ctx context.Context, dest, source string) error {
	query := "INSERT INTO " + SanitiseName(dest) + " SELECT * FROM " + SanitiseName(source)
	if _, err := d.ExecContext(ctx, "append_table", query); err != nil {
		return fmt.Errorf("failed to append %s to %s: %w", source, dest, err)
	}
	return nil
}

// JoinTables creates result as the INNER JOIN of left and right on joinFields. The result holds
// the join keys (taken from left) plus the columns unique to either side; columns present on
// both sides that are not join keys are dropped.
func (d *DB) JoinTables(ctx context.Context, left, right, result string, joinFields []string) error {
	leftFields, err := d.ListFields(ctx, left)
	if err != nil {
		return err
	}
	rightFields, err := d.ListFields(ctx, right)
	if err != nil {
		return err
	}

	l, r := SanitiseName(left), SanitiseName(right)

	selectFields := make([]string, 0, len(leftFields)+len(rightFields))
	conditions := make([]string, len(joinFields))
	for i, field := range joinFields {
		name := SanitiseName(field)
		selectFields = append(selectFields, l+"."+name)
		conditions[i] = l + "." + name + " = " + r + "." + name
	}
	for _, field := range leftFields {
		if !slices.Contains(rightFields, field) {
			selectFields = append(selectFields, l+"."+SanitiseName(field))
		}
	}
	for _, field := range rightFields {
		if !slices.Contains(leftFields, field) {
			selectFields = append(selectFields, r+"."+SanitiseName(field))
		}
	}

	query := "CREATE TABLE " + SanitiseName(result) +
		" AS SELECT " + strings.Join(selectFields, ",") +
		" FROM " + l + " INNER JOIN " + r +
		" ON (" + strings.Join(conditions, " AND ") + ")"

	if _, err := d.ExecContext(ctx, "join_tables", query); err != nil {
		return fmt.Errorf("failed to join %s and %s: %w", left, right, err)
	}
	return nil
}

// RenameTable renames a table
func (d *DB) RenameTable(ctx context.Context, oldName, newName string) error {
	query := "ALTER TABLE " + SanitiseName(oldName) + " RENAME TO " + SanitiseName(newName)
	if _, err := d.ExecContext(ctx, "rename_table", query); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", oldName, newName, err)
	}
	return nil
}

// DropTable drops a table
func (d *DB) DropTable(ctx context.Context, table string) error {
	if _, err := d.ExecContext(ctx, "drop_table", "DROP TABLE "+SanitiseName(table)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", table, err)
	}
	return nil
}

// QueryRows runs query and reshapes the result for CSV output: the first row holds the column
// names in engine order, NULL becomes the empty string.
func (d *DB) QueryRows(ctx context.Context, queryType, query string, args ...interface{}) ([][]string, error) {
	rows, err := d.QueryContext(ctx, queryType, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := [][]string{columns}
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = FormatValue(v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, d.storeError(query, err)
	}

	return result, nil
}

// FormatValue renders a scanned column value as CSV text
func FormatValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(value)
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprint(value)
	}
}
