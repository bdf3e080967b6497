package jdbcsink

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	RegisterDialect(&postgresDialect{
		sqlBuilder: sqlBuilder{quoteStart: `"`, quoteEnd: `"`, numberedPlaceholders: true},
	})
}

// postgresDialect targets PostgreSQL through the lib/pq driver.
type postgresDialect struct {
	sqlBuilder
}

func (d *postgresDialect) Name() string { return "postgres" }

func (d *postgresDialect) sqlType(f SinkField) string {
	switch f.Type {
	case TypeInt8, TypeInt16:
		return "SMALLINT"
	case TypeInt32:
		return "INTEGER"
	case TypeInt64:
		return "BIGINT"
	case TypeFloat32:
		return "REAL"
	case TypeFloat64:
		return "DOUBLE PRECISION"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeString:
		return "TEXT"
	case TypeBytes:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func (d *postgresDialect) BuildCreateTableStatement(table TableID, fields []SinkField) (string, error) {
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

func (d *postgresDialect) BuildAlterTableStatements(table TableID, fields []SinkField) ([]string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("cannot alter table %q with no fields", table)
	}
	// PostgreSQL supports multiple ADD COLUMN clauses in one statement.
	clauses := make([]string, 0, len(fields))
	for _, f := range fields {
		clauses = append(clauses, fmt.Sprintf("ADD COLUMN %s %s NULL", d.quote(f.Name), d.sqlType(f)))
	}
	return []string{fmt.Sprintf("ALTER TABLE %s %s",
		d.quoteTable(table), strings.Join(clauses, ", "))}, nil
}

func (d *postgresDialect) BuildInsertStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildInsert(table, keyColumns, nonKeyColumns)
}

func (d *postgresDialect) BuildMultiInsertStatement(table TableID, _ *TableDefinition, rows int, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildMultiInsert(table, rows, keyColumns, nonKeyColumns)
}

func (d *postgresDialect) BuildUpsertStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	if len(keyColumns) == 0 {
		return "", fmt.Errorf("cannot build upsert statement for table %q with no key columns", table)
	}
	all := append(append([]ColumnID{}, keyColumns...), nonKeyColumns...)
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		d.quoteTable(table), d.columnList(all), d.placeholderList(1, len(all)), d.columnList(keyColumns))
	if len(nonKeyColumns) == 0 {
		sb.WriteString(" DO NOTHING")
		return sb.String(), nil
	}
	sets := make([]string, len(nonKeyColumns))
	for i, c := range nonKeyColumns {
		sets[i] = d.quote(c.Name) + " = EXCLUDED." + d.quote(c.Name)
	}
	fmt.Fprintf(&sb, " DO UPDATE SET %s", strings.Join(sets, ", "))
	return sb.String(), nil
}

func (d *postgresDialect) BuildUpdateStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildUpdate(table, keyColumns, nonKeyColumns)
}

func (d *postgresDialect) BuildDeleteStatement(table TableID, keyColumns []ColumnID) (string, error) {
	return d.buildDelete(table, keyColumns)
}

func (d *postgresDialect) DescribeTable(ctx context.Context, db Queryer, table TableID) (*TableDefinition, error) {
	const columnsQuery = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND table_name = $2
		ORDER BY ordinal_position`
	rows, err := db.QueryContext(ctx, columnsQuery, table.Schema, table.Table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	def := &TableDefinition{ID: table, Columns: make(map[string]ColumnDefinition)}
	for rows.Next() {
		var name, typeName, nullable string
		if err := rows.Scan(&name, &typeName, &nullable); err != nil {
			return nil, err
		}
		def.Columns[name] = ColumnDefinition{
			Name:     name,
			TypeName: typeName,
			Nullable: strings.EqualFold(nullable, "YES"),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(def.Columns) == 0 {
		return nil, nil
	}

	const pkQuery = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND tc.table_name = $2`
	pkRows, err := db.QueryContext(ctx, pkQuery, table.Schema, table.Table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pkRows.Close() }()
	for pkRows.Next() {
		var name string
		if err := pkRows.Scan(&name); err != nil {
			return nil, err
		}
		if col, ok := def.Columns[name]; ok {
			col.PrimaryKey = true
			def.Columns[name] = col
		}
	}
	if err := pkRows.Err(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *postgresDialect) StatementBinder(pkMode PKMode, pair SchemaPair, meta *FieldsMetadata, mode InsertMode) StatementBinder {
	return newStatementBinder(pkMode, pair, meta, mode)
}
