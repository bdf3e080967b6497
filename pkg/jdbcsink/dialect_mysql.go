package jdbcsink

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	RegisterDialect(&mysqlDialect{
		sqlBuilder: sqlBuilder{quoteStart: "`", quoteEnd: "`"},
	})
}

// mysqlDialect targets MySQL and MariaDB through the go-sql-driver/mysql
// driver.
type mysqlDialect struct {
	sqlBuilder
}

func (d *mysqlDialect) Name() string { return "mysql" }

func (d *mysqlDialect) sqlType(f SinkField) string {
	switch f.Type {
	case TypeInt8:
		return "TINYINT"
	case TypeInt16:
		return "SMALLINT"
	case TypeInt32:
		return "INT"
	case TypeInt64:
		return "BIGINT"
	case TypeFloat32:
		return "FLOAT"
	case TypeFloat64:
		return "DOUBLE"
	case TypeBoolean:
		return "TINYINT(1)"
	case TypeString:
		// VARCHAR keeps string columns usable inside a primary key.
		return "VARCHAR(256)"
	case TypeBytes:
		return "VARBINARY(1024)"
	default:
		return "VARCHAR(256)"
	}
}

func (d *mysqlDialect) BuildCreateTableStatement(table TableID, fields []SinkField) (string, error) {
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

func (d *mysqlDialect) BuildAlterTableStatements(table TableID, fields []SinkField) ([]string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("cannot alter table %q with no fields", table)
	}
	clauses := make([]string, 0, len(fields))
	for _, f := range fields {
		clauses = append(clauses, fmt.Sprintf("ADD %s %s NULL", d.quote(f.Name), d.sqlType(f)))
	}
	return []string{fmt.Sprintf("ALTER TABLE %s %s",
		d.quoteTable(table), strings.Join(clauses, ", "))}, nil
}

func (d *mysqlDialect) BuildInsertStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildInsert(table, keyColumns, nonKeyColumns)
}

func (d *mysqlDialect) BuildMultiInsertStatement(table TableID, _ *TableDefinition, rows int, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildMultiInsert(table, rows, keyColumns, nonKeyColumns)
}

func (d *mysqlDialect) BuildUpsertStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	if len(keyColumns) == 0 {
		return "", fmt.Errorf("cannot build upsert statement for table %q with no key columns", table)
	}
	all := append(append([]ColumnID{}, keyColumns...), nonKeyColumns...)
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE ",
		d.quoteTable(table), d.columnList(all), d.placeholderList(1, len(all)))
	if len(nonKeyColumns) == 0 {
		// Nothing to update; touch a key column to keep the statement valid.
		k := d.quote(keyColumns[0].Name)
		sb.WriteString(k + " = " + k)
		return sb.String(), nil
	}
	sets := make([]string, len(nonKeyColumns))
	for i, c := range nonKeyColumns {
		q := d.quote(c.Name)
		sets[i] = q + " = VALUES(" + q + ")"
	}
	sb.WriteString(strings.Join(sets, ", "))
	return sb.String(), nil
}

func (d *mysqlDialect) BuildUpdateStatement(table TableID, _ *TableDefinition, keyColumns, nonKeyColumns []ColumnID) (string, error) {
	return d.buildUpdate(table, keyColumns, nonKeyColumns)
}

func (d *mysqlDialect) BuildDeleteStatement(table TableID, keyColumns []ColumnID) (string, error) {
	return d.buildDelete(table, keyColumns)
}

func (d *mysqlDialect) DescribeTable(ctx context.Context, db Queryer, table TableID) (*TableDefinition, error) {
	const query = `
		SELECT column_name, data_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_name = ?
		ORDER BY ordinal_position`
	rows, err := db.QueryContext(ctx, query, table.Schema, table.Table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	def := &TableDefinition{ID: table, Columns: make(map[string]ColumnDefinition)}
	for rows.Next() {
		var name, typeName, nullable, columnKey string
		if err := rows.Scan(&name, &typeName, &nullable, &columnKey); err != nil {
			return nil, err
		}
		def.Columns[name] = ColumnDefinition{
			Name:       name,
			TypeName:   typeName,
			Nullable:   strings.EqualFold(nullable, "YES"),
			PrimaryKey: strings.EqualFold(columnKey, "PRI"),
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

func (d *mysqlDialect) StatementBinder(pkMode PKMode, pair SchemaPair, meta *FieldsMetadata, mode InsertMode) StatementBinder {
	return newStatementBinder(pkMode, pair, meta, mode)
}
