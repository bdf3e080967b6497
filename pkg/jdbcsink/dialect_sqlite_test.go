package jdbcsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteForTest(t *testing.T) Dialect {
	t.Helper()
	d, err := GetDialect("sqlite")
	require.NoError(t, err)
	return d
}

func TestSQLiteDialect_CreateTable(t *testing.T) {
	d := sqliteForTest(t)
	table := TableID{Table: "books"}

	query, err := d.BuildCreateTableStatement(table, []SinkField{
		{Name: "id", Type: TypeInt64, PrimaryKey: true},
		{Name: "name", Type: TypeString},
		{Name: "pages", Type: TypeInt32, Optional: true},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE TABLE `books` (\n"+
			"`id` NUMERIC NOT NULL,\n"+
			"`name` TEXT NULL,\n"+
			"`pages` NUMERIC NULL,\n"+
			"PRIMARY KEY(`id`))",
		query)
}

func TestSQLiteDialect_AlterTable(t *testing.T) {
	d := sqliteForTest(t)
	table := TableID{Table: "books"}

	statements, err := d.BuildAlterTableStatements(table, []SinkField{
		{Name: "name", Type: TypeString, Optional: true},
		{Name: "cover", Type: TypeBytes, Optional: true},
	})
	require.NoError(t, err)

	// One statement per column: SQLite cannot add two columns at once.
	require.Len(t, statements, 2)
	assert.Equal(t, "ALTER TABLE `books` ADD `name` TEXT NULL", statements[0])
	assert.Equal(t, "ALTER TABLE `books` ADD `cover` BLOB NULL", statements[1])
}

func TestSQLiteDialect_Statements(t *testing.T) {
	d := sqliteForTest(t)
	table := TableID{Table: "books"}
	keys := cols(table, "id")
	nonKeys := cols(table, "name")

	t.Run("insert", func(t *testing.T) {
		query, err := d.BuildInsertStatement(table, nil, keys, nonKeys)
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO `books` (`id`,`name`) VALUES (?,?)", query)
	})

	t.Run("multi insert", func(t *testing.T) {
		query, err := d.BuildMultiInsertStatement(table, nil, 3, keys, nonKeys)
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO `books` (`id`,`name`) VALUES (?,?),(?,?),(?,?)", query)
	})

	t.Run("upsert", func(t *testing.T) {
		query, err := d.BuildUpsertStatement(table, nil, keys, nonKeys)
		require.NoError(t, err)
		assert.Equal(t, "INSERT OR REPLACE INTO `books` (`id`,`name`) VALUES (?,?)", query)
	})

	t.Run("upsert requires keys", func(t *testing.T) {
		_, err := d.BuildUpsertStatement(table, nil, nil, nonKeys)
		assert.Error(t, err)
	})

	t.Run("update", func(t *testing.T) {
		query, err := d.BuildUpdateStatement(table, nil, keys, nonKeys)
		require.NoError(t, err)
		assert.Equal(t, "UPDATE `books` SET `name` = ? WHERE `id` = ?", query)
	})

	t.Run("delete", func(t *testing.T) {
		query, err := d.BuildDeleteStatement(table, keys)
		require.NoError(t, err)
		assert.Equal(t, "DELETE FROM `books` WHERE `id` = ?", query)
	})
}
