package jdbcsink

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// TableID identifies a destination table, optionally qualified with a
// schema (namespace) name.
type TableID struct {
	Schema string
	Table  string
}

func (t TableID) String() string {
	if t.Schema == "" {
		return t.Table
	}
	return t.Schema + "." + t.Table
}

// ColumnID identifies a column of a destination table. Identity is the
// (table, name) pair.
type ColumnID struct {
	Table TableID
	Name  string
}

// ColumnDefinition is one column of an existing destination table.
type ColumnDefinition struct {
	Name       string
	TypeName   string
	Nullable   bool
	PrimaryKey bool
}

// TableDefinition is a snapshot of a table's column set as known to the
// destination at a point in time. It becomes stale once the table is
// altered and must be refreshed after any DDL.
type TableDefinition struct {
	ID      TableID
	Columns map[string]ColumnDefinition
}

// HasColumn reports whether the snapshot contains the named column.
func (d *TableDefinition) HasColumn(name string) bool {
	_, ok := d.Columns[name]
	return ok
}

// Queryer is the subset of database/sql operations the engine issues
// against a connection. Both *sql.DB and *sql.Tx satisfy it.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// StatementBinder turns records into bind arguments for a prepared
// statement, in the column order of the statement the dialect built.
type StatementBinder interface {
	// BindRecord returns the bind arguments for one non-tombstone record.
	BindRecord(record Record) ([]any, error)
	// BindTombstoneRecord returns the key-column bind arguments for a
	// tombstone record.
	BindTombstoneRecord(record Record) ([]any, error)
}

// Dialect translates abstract table and column descriptors into statement
// text for one database family, and produces value binders for the
// statements it builds. Statement builders return ErrUnsupported when the
// database cannot express the requested shape.
type Dialect interface {
	Name() string

	BuildCreateTableStatement(table TableID, fields []SinkField) (string, error)
	BuildAlterTableStatements(table TableID, fields []SinkField) ([]string, error)

	BuildInsertStatement(table TableID, def *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error)
	BuildMultiInsertStatement(table TableID, def *TableDefinition, rows int, keyColumns, nonKeyColumns []ColumnID) (string, error)
	BuildUpsertStatement(table TableID, def *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error)
	BuildUpdateStatement(table TableID, def *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error)
	BuildDeleteStatement(table TableID, keyColumns []ColumnID) (string, error)

	// DescribeTable reads the table's current definition through the
	// connection. A nil definition with a nil error means the table does
	// not exist.
	DescribeTable(ctx context.Context, db Queryer, table TableID) (*TableDefinition, error)

	// StatementBinder returns a binder matching the statements this
	// dialect builds for the given modes and metadata.
	StatementBinder(pkMode PKMode, pair SchemaPair, meta *FieldsMetadata, mode InsertMode) StatementBinder
}

// dialectRegistry holds all registered dialects.
// Protected by mutex to allow registration during init().
var (
	dialectRegistry   = make(map[string]Dialect)
	dialectRegistryMu sync.RWMutex
)

// RegisterDialect registers a dialect by its Name. Call this in init() to
// register custom dialects.
func RegisterDialect(d Dialect) {
	dialectRegistryMu.Lock()
	defer dialectRegistryMu.Unlock()

	if d == nil || d.Name() == "" {
		panic("dialect name cannot be empty")
	}
	dialectRegistry[d.Name()] = d
}

// GetDialect returns a registered dialect by name.
func GetDialect(name string) (Dialect, error) {
	dialectRegistryMu.RLock()
	defer dialectRegistryMu.RUnlock()

	if d, ok := dialectRegistry[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unknown dialect: %q (available: %v)", name, availableDialectsLocked())
}

// AvailableDialects returns all registered dialect names in sorted order.
func AvailableDialects() []string {
	dialectRegistryMu.RLock()
	defer dialectRegistryMu.RUnlock()

	return availableDialectsLocked()
}

func availableDialectsLocked() []string {
	names := make([]string, 0, len(dialectRegistry))
	for name := range dialectRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sqlBuilder carries the identifier quoting and placeholder conventions
// shared by the concrete dialects.
type sqlBuilder struct {
	quoteStart           string
	quoteEnd             string
	numberedPlaceholders bool
}

func (b sqlBuilder) quote(name string) string {
	return b.quoteStart + name + b.quoteEnd
}

func (b sqlBuilder) quoteTable(t TableID) string {
	if t.Schema == "" {
		return b.quote(t.Table)
	}
	return b.quote(t.Schema) + "." + b.quote(t.Table)
}

// placeholder returns the bind marker for 1-based position i.
func (b sqlBuilder) placeholder(i int) string {
	if b.numberedPlaceholders {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// placeholderList returns n comma-joined bind markers starting at 1-based
// position start.
func (b sqlBuilder) placeholderList(start, n int) string {
	markers := make([]string, n)
	for i := range markers {
		markers[i] = b.placeholder(start + i)
	}
	return strings.Join(markers, ",")
}

func (b sqlBuilder) columnList(cols []ColumnID) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.quote(c.Name)
	}
	return strings.Join(quoted, ",")
}

// equalityList joins "col = ?" terms with the given separator, numbering
// placeholders from 1-based position start.
func (b sqlBuilder) equalityList(cols []ColumnID, start int, sep string) string {
	terms := make([]string, len(cols))
	for i, c := range cols {
		terms[i] = b.quote(c.Name) + " = " + b.placeholder(start+i)
	}
	return strings.Join(terms, sep)
}

// buildInsert assembles the shared single-row INSERT shape.
func (b sqlBuilder) buildInsert(table TableID, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	all := append(append([]ColumnID{}, keyColumns...), nonKeyColumns...)
	if len(all) == 0 {
		return "", fmt.Errorf("cannot build insert statement for table %q with no columns", table)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.quoteTable(table), b.columnList(all), b.placeholderList(1, len(all))), nil
}

// buildMultiInsert assembles the shared multi-row INSERT shape with one
// VALUES tuple per row and monotonically increasing bind positions.
func (b sqlBuilder) buildMultiInsert(table TableID, rows int, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	all := append(append([]ColumnID{}, keyColumns...), nonKeyColumns...)
	if len(all) == 0 {
		return "", fmt.Errorf("cannot build multi insert statement for table %q with no columns", table)
	}
	if rows <= 0 {
		return "", fmt.Errorf("cannot build multi insert statement for table %q with %d rows", table, rows)
	}
	tuples := make([]string, rows)
	for i := range tuples {
		tuples[i] = "(" + b.placeholderList(i*len(all)+1, len(all)) + ")"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		b.quoteTable(table), b.columnList(all), strings.Join(tuples, ",")), nil
}

// buildUpdate assembles the shared UPDATE shape: non-key columns are set
// first, key columns appear in the WHERE clause.
func (b sqlBuilder) buildUpdate(table TableID, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	if len(nonKeyColumns) == 0 {
		return "", fmt.Errorf("cannot build update statement for table %q with no non-key columns", table)
	}
	query := fmt.Sprintf("UPDATE %s SET %s",
		b.quoteTable(table), b.equalityList(nonKeyColumns, 1, ", "))
	if len(keyColumns) > 0 {
		query += " WHERE " + b.equalityList(keyColumns, len(nonKeyColumns)+1, " AND ")
	}
	return query, nil
}

// buildDelete assembles the shared single-row DELETE shape keyed by the
// primary-key columns.
func (b sqlBuilder) buildDelete(table TableID, keyColumns []ColumnID) (string, error) {
	if len(keyColumns) == 0 {
		return "", fmt.Errorf("cannot build delete statement for table %q with no key columns", table)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s",
		b.quoteTable(table), b.equalityList(keyColumns, 1, " AND ")), nil
}
