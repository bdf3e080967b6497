package jdbcsink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "${topic}", cfg.TableNameFormat)
	assert.Equal(t, 3000, cfg.BatchSize)
	assert.Equal(t, InsertModeInsert, cfg.InsertMode)
	assert.Equal(t, PKModeNone, cfg.PKMode)
	assert.Equal(t, TombstoneFail, cfg.TombstonePolicy)
	assert.False(t, cfg.DeleteEnabled)
	assert.False(t, cfg.AutoCreate)
	assert.False(t, cfg.AutoEvolve)
	assert.Equal(t, uint(10), cfg.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.RetryBackoff)
}

func TestParseConfig(t *testing.T) {
	t.Run("empty input keeps defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, NewConfig(), cfg)
	})

	t.Run("JSON overrides defaults", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`{
			"driver": "postgres",
			"dsn": "postgres://localhost/test",
			"tableNameFormat": "sink_${topic}",
			"batchSize": 500,
			"insertMode": "upsert",
			"pkMode": "record_key",
			"pkFields": ["id"],
			"fieldsWhitelist": ["name"],
			"deleteEnabled": false,
			"autoCreate": true,
			"maxRetries": 2,
			"retryBackoff": "250ms"
		}`))
		require.NoError(t, err)

		assert.Equal(t, "postgres", cfg.Driver)
		assert.Equal(t, "postgres://localhost/test", cfg.DSN)
		assert.Equal(t, "sink_${topic}", cfg.TableNameFormat)
		assert.Equal(t, 500, cfg.BatchSize)
		assert.Equal(t, InsertModeUpsert, cfg.InsertMode)
		assert.Equal(t, PKModeRecordKey, cfg.PKMode)
		assert.Equal(t, []string{"id"}, cfg.PKFields)
		assert.Equal(t, []string{"name"}, cfg.FieldsWhitelist)
		assert.True(t, cfg.AutoCreate)
		assert.Equal(t, uint(2), cfg.MaxRetries)
		assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseConfig([]byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("invalid insert mode", func(t *testing.T) {
		_, err := ParseConfig([]byte(`{"insertMode": "replace"}`))
		assert.ErrorContains(t, err, "invalid insert mode")
	})

	t.Run("invalid retry backoff", func(t *testing.T) {
		_, err := ParseConfig([]byte(`{"retryBackoff": "soon"}`))
		assert.ErrorContains(t, err, "invalid retryBackoff")
	})

	t.Run("environment overrides JSON", func(t *testing.T) {
		t.Setenv("JDBC_SINK_DRIVER", "mysql")
		t.Setenv("JDBC_SINK_DSN", "root@/test")
		t.Setenv("JDBC_SINK_BATCH_SIZE", "42")
		t.Setenv("JDBC_SINK_PK_MODE", "kafka")
		t.Setenv("JDBC_SINK_PK_FIELDS", "t, p, o")

		cfg, err := ParseConfig([]byte(`{"driver": "postgres", "batchSize": 500}`))
		require.NoError(t, err)

		assert.Equal(t, "mysql", cfg.Driver)
		assert.Equal(t, "root@/test", cfg.DSN)
		assert.Equal(t, 42, cfg.BatchSize)
		assert.Equal(t, PKModeKafka, cfg.PKMode)
		assert.Equal(t, []string{"t", "p", "o"}, cfg.PKFields)
	})

	t.Run("environment covers every key", func(t *testing.T) {
		t.Setenv("JDBC_SINK_DIALECT", "postgres")
		t.Setenv("JDBC_SINK_TABLE_NAME_FORMAT", "sink_${topic}")
		t.Setenv("JDBC_SINK_INSERT_MODE", "upsert")
		t.Setenv("JDBC_SINK_FIELDS_WHITELIST", "id, name")
		t.Setenv("JDBC_SINK_DELETE_ENABLED", "true")
		t.Setenv("JDBC_SINK_TOMBSTONE_POLICY", "ignore")
		t.Setenv("JDBC_SINK_AUTO_CREATE", "true")
		t.Setenv("JDBC_SINK_AUTO_EVOLVE", "1")
		t.Setenv("JDBC_SINK_MAX_RETRIES", "5")
		t.Setenv("JDBC_SINK_RETRY_BACKOFF", "250ms")

		cfg, err := ParseConfig(nil)
		require.NoError(t, err)

		assert.Equal(t, "postgres", cfg.Dialect)
		assert.Equal(t, "sink_${topic}", cfg.TableNameFormat)
		assert.Equal(t, InsertModeUpsert, cfg.InsertMode)
		assert.Equal(t, []string{"id", "name"}, cfg.FieldsWhitelist)
		assert.True(t, cfg.DeleteEnabled)
		assert.Equal(t, TombstoneIgnore, cfg.TombstonePolicy)
		assert.True(t, cfg.AutoCreate)
		assert.True(t, cfg.AutoEvolve)
		assert.Equal(t, uint(5), cfg.MaxRetries)
		assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	})

	t.Run("invalid environment batch size", func(t *testing.T) {
		t.Setenv("JDBC_SINK_BATCH_SIZE", "many")
		_, err := ParseConfig(nil)
		assert.ErrorContains(t, err, "JDBC_SINK_BATCH_SIZE")
	})

	t.Run("invalid environment boolean", func(t *testing.T) {
		t.Setenv("JDBC_SINK_AUTO_CREATE", "maybe")
		_, err := ParseConfig(nil)
		assert.ErrorContains(t, err, "JDBC_SINK_AUTO_CREATE")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config { return NewConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "non-positive batch size",
			mutate:  func(c *Config) { c.BatchSize = 0 },
			wantErr: "batch size must be positive",
		},
		{
			name:    "invalid insert mode",
			mutate:  func(c *Config) { c.InsertMode = "replace" },
			wantErr: "invalid insert mode",
		},
		{
			name:    "invalid tombstone policy",
			mutate:  func(c *Config) { c.TombstonePolicy = "skip" },
			wantErr: "invalid tombstone policy",
		},
		{
			name:    "pk fields with pk mode none",
			mutate:  func(c *Config) { c.PKFields = []string{"id"} },
			wantErr: "should not be set",
		},
		{
			name: "kafka pk mode with wrong field count",
			mutate: func(c *Config) {
				c.PKMode = PKModeKafka
				c.PKFields = []string{"a", "b"}
			},
			wantErr: "exactly three",
		},
		{
			name: "kafka pk mode with three fields",
			mutate: func(c *Config) {
				c.PKMode = PKModeKafka
				c.PKFields = []string{"t", "p", "o"}
			},
		},
		{
			name: "kafka pk mode with default fields",
			mutate: func(c *Config) {
				c.PKMode = PKModeKafka
			},
		},
		{
			name: "invalid pk field identifier",
			mutate: func(c *Config) {
				c.PKMode = PKModeRecordKey
				c.PKFields = []string{"id; DROP TABLE books"}
			},
			wantErr: "invalid primary key field name",
		},
		{
			name: "delete requires record_key pk mode",
			mutate: func(c *Config) {
				c.DeleteEnabled = true
				c.PKMode = PKModeKafka
			},
			wantErr: "delete support only works",
		},
		{
			name: "delete with record_key pk mode",
			mutate: func(c *Config) {
				c.DeleteEnabled = true
				c.PKMode = PKModeRecordKey
				c.PKFields = []string{"id"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfig_TableName(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "books", cfg.TableName("books"))

	cfg.TableNameFormat = "sink_${topic}_v1"
	assert.Equal(t, "sink_books_v1", cfg.TableName("books"))

	cfg.TableNameFormat = "fixed"
	assert.Equal(t, "fixed", cfg.TableName("books"))
}

func TestConfig_DialectName(t *testing.T) {
	cfg := NewConfig()
	cfg.Driver = "pgx"
	assert.Equal(t, "pgx", cfg.DialectName())

	cfg.Dialect = "postgres"
	assert.Equal(t, "postgres", cfg.DialectName())
}
