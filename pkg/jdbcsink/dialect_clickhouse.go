package jdbcsink

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	RegisterDialect(&clickhouseDialect{
		sqlBuilder: sqlBuilder{quoteStart: "`", quoteEnd: "`"},
	})
}

// clickhouseDialect targets ClickHouse through the clickhouse-go driver.
// ClickHouse is append-only from the connector's point of view: upserts,
// updates and deletes are reported as unsupported, which the engine turns
// into configuration errors.
type clickhouseDialect struct {
	sqlBuilder
}

func (d *clickhouseDialect) Name() string { return "clickhouse" }

func (d *clickhouseDialect) sqlType(f SinkField) string {
	var base string
	switch f.Type {
	case TypeInt8:
		base = "Int8"
	case TypeInt16:
		base = "Int16"
	case TypeInt32:
		base = "Int32"
	case TypeInt64:
		base = "Int64"
	case TypeFloat32:
		base = "Float32"
	case TypeFloat64:
		base = "Float64"
	case TypeBoolean:
		base = "Bool"
	case TypeBytes, TypeString:
		base = "String"
	default:
		base = "String"
	}
	if f.Optional && !f.PrimaryKey {
		return "Nullable(" + base + ")"
	}
	return base
}

func (d *clickhouseDialect) BuildCreateTableStatement(table TableID, fields []SinkField) (string, error) {
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
			pks = append(pks, d.quote(f.Name))
		}
	}
	sb.WriteString("\n) ENGINE = MergeTree()")
	if len(pks) > 0 {
		fmt.Fprintf(&sb, " ORDER BY (%s)", strings.Join(pks, ","))
	} else {
		sb.WriteString(" ORDER BY tuple()")
	}
	return sb.String(), nil
}

func (d *clickhouseDialect) BuildAlterTableStatements(table TableID, fields []SinkField) ([]string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("cannot alter table %q with no fields", table)
	}
	clauses := make([]string, 0, len(fields))
	for _, f := range fields {
		f.Optional = true
		clauses = append(clauses, fmt.Sprintf("ADD COLUMN %s %s", d.quote(f.Name), d.sqlType(f)))
	}
	return []string{fmt.Sprintf("ALTER TABLE %s %s",
		d.quoteTable(table), strings.Join(clauses, ", "))}, nil
}

func (d *clickhouseDialect) BuildInsertStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildInsert(table, keyColumns, nonKeyColumns)
}

func (d *clickhouseDialect) BuildMultiInsertStatement(table TableID, _ *TableDefinition, rows int, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildMultiInsert(table, rows, keyColumns, nonKeyColumns)
}

func (d *clickhouseDialect) BuildUpsertStatement(TableID, *TableDefinition, []ColumnID, []ColumnID) (string, error) {
	return "", ErrUnsupported
}

func (d *clickhouseDialect) BuildUpdateStatement(TableID, *TableDefinition, []ColumnID, []ColumnID) (string, error) {
	return "", ErrUnsupported
}

func (d *clickhouseDialect) BuildDeleteStatement(TableID, []ColumnID) (string, error) {
	return "", ErrUnsupported
}

func (d *clickhouseDialect) DescribeTable(ctx context.Context, db Queryer, table TableID) (*TableDefinition, error) {
	const query = `
		SELECT name, type, is_in_primary_key
		FROM system.columns
		WHERE database = currentDatabase() AND table = ?
		ORDER BY position`
	rows, err := db.QueryContext(ctx, query, table.Table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	def := &TableDefinition{ID: table, Columns: make(map[string]ColumnDefinition)}
	for rows.Next() {
		var (
			name, typeName string
			inPK           uint8
		)
		if err := rows.Scan(&name, &typeName, &inPK); err != nil {
			return nil, err
		}
		def.Columns[name] = ColumnDefinition{
			Name:       name,
			TypeName:   typeName,
			Nullable:   strings.HasPrefix(typeName, "Nullable("),
			PrimaryKey: inPK == 1,
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

func (d *clickhouseDialect) StatementBinder(pkMode PKMode, pair SchemaPair, meta *FieldsMetadata, mode InsertMode) StatementBinder {
	return newStatementBinder(pkMode, pair, meta, mode)
}
