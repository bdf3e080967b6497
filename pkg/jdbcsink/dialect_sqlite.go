package jdbcsink

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	RegisterDialect(&sqliteDialect{
		sqlBuilder: sqlBuilder{quoteStart: "`", quoteEnd: "`"},
	})
}

// sqliteDialect targets SQLite through the modernc.org/sqlite driver.
type sqliteDialect struct {
	sqlBuilder
}

func (d *sqliteDialect) Name() string { return "sqlite" }

func (d *sqliteDialect) sqlType(f SinkField) string {
	switch f.Type {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeBoolean:
		return "NUMERIC"
	case TypeFloat32, TypeFloat64:
		return "REAL"
	case TypeString:
		return "TEXT"
	case TypeBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (d *sqliteDialect) BuildCreateTableStatement(table TableID, fields []SinkField) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("cannot create table %q with no fields", table)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (", d.quoteTable(table))
	var pks []string
	for i, f := range fields {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
		sb.WriteString(d.quote(f.Name))
		sb.WriteString(" ")
		sb.WriteString(d.sqlType(f))
		if f.PrimaryKey {
			sb.WriteString(" NOT NULL")
			pks = append(pks, d.quote(f.Name))
		} else {
			sb.WriteString(" NULL")
		}
	}
	if len(pks) > 0 {
		fmt.Fprintf(&sb, ",\nPRIMARY KEY(%s)", strings.Join(pks, ","))
	}
	sb.WriteString(")")
	return sb.String(), nil
}

func (d *sqliteDialect) BuildAlterTableStatements(table TableID, fields []SinkField) ([]string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("cannot alter table %q with no fields", table)
	}
	// SQLite only supports one ADD per ALTER TABLE.
	statements := make([]string, 0, len(fields))
	for _, f := range fields {
		statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD %s %s NULL",
			d.quoteTable(table), d.quote(f.Name), d.sqlType(f)))
	}
	return statements, nil
}

func (d *sqliteDialect) BuildInsertStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildInsert(table, keyColumns, nonKeyColumns)
}

func (d *sqliteDialect) BuildMultiInsertStatement(table TableID, _ *TableDefinition, rows int, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildMultiInsert(table, rows, keyColumns, nonKeyColumns)
}

func (d *sqliteDialect) BuildUpsertStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	if len(keyColumns) == 0 {
		return "", fmt.Errorf("cannot build upsert statement for table %q with no key columns", table)
	}
	all := append(append([]ColumnID{}, keyColumns...), nonKeyColumns...)
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		d.quoteTable(table), d.columnList(all), d.placeholderList(1, len(all))), nil
}

func (d *sqliteDialect) BuildUpdateStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildUpdate(table, keyColumns, nonKeyColumns)
}

func (d *sqliteDialect) BuildDeleteStatement(table TableID, keyColumns []ColumnID) (string, error) {
	return d.buildDelete(table, keyColumns)
}

func (d *sqliteDialect) DescribeTable(ctx context.Context, db Queryer, table TableID) (*TableDefinition, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?)`, table.Table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	def := &TableDefinition{ID: table, Columns: make(map[string]ColumnDefinition)}
	for rows.Next() {
		var (
			name, typeName string
			notNull, pk    int
		)
		if err := rows.Scan(&name, &typeName, &notNull, &pk); err != nil {
			return nil, err
		}
		def.Columns[name] = ColumnDefinition{
			Name:       name,
			TypeName:   typeName,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(def.Columns) == 0 {
		return nil, nil
	}
	return def, nil
}

func (d *sqliteDialect) StatementBinder(pkMode PKMode, pair SchemaPair, meta *FieldsMetadata, mode InsertMode) StatementBinder {
	return newStatementBinder(pkMode, pair, meta, mode)
}
