package jdbcsink

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// InsertMode selects the statement shape used for non-tombstone records.
type InsertMode string

const (
	// InsertModeInsert writes each record with a single-row INSERT.
	InsertModeInsert InsertMode = "insert"
	// InsertModeUpsert writes each record with the dialect's upsert form.
	InsertModeUpsert InsertMode = "upsert"
	// InsertModeUpdate writes each record with an UPDATE keyed by the
	// primary-key columns.
	InsertModeUpdate InsertMode = "update"
	// InsertModeMulti writes the whole batch with one multi-row INSERT.
	InsertModeMulti InsertMode = "multi"
)

// ParseInsertMode parses an insert mode name.
func ParseInsertMode(s string) (InsertMode, error) {
	switch InsertMode(strings.ToLower(s)) {
	case InsertModeInsert, InsertModeUpsert, InsertModeUpdate, InsertModeMulti:
		return InsertMode(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("invalid insert mode: %q", s)
	}
}

// PKMode governs how primary-key columns are derived from a record.
type PKMode string

const (
	// PKModeNone produces no key columns.
	PKModeNone PKMode = "none"
	// PKModeKafka uses the record's topic, partition and offset as a
	// synthetic three-column key.
	PKModeKafka PKMode = "kafka"
	// PKModeRecordKey derives key columns from the record's key schema.
	PKModeRecordKey PKMode = "record_key"
	// PKModeRecordValue derives key columns from the record's value schema.
	PKModeRecordValue PKMode = "record_value"
)

// ParsePKMode parses a primary-key mode name.
func ParsePKMode(s string) (PKMode, error) {
	switch PKMode(strings.ToLower(s)) {
	case PKModeNone, PKModeKafka, PKModeRecordKey, PKModeRecordValue:
		return PKMode(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("invalid pk mode: %q", s)
	}
}

// TombstonePolicy decides what happens to a tombstone record when delete
// support is disabled.
type TombstonePolicy string

const (
	// TombstoneFail rejects the record with a configuration error.
	TombstoneFail TombstonePolicy = "fail"
	// TombstoneIgnore drops the record with a warning and reports it as
	// flushed so the caller can acknowledge it.
	TombstoneIgnore TombstonePolicy = "ignore"
)

// Config holds the sink configuration. All fields are read-only to the
// engine once parsed.
type Config struct {
	Driver          string
	DSN             string
	Dialect         string
	TableNameFormat string

	BatchSize       int
	InsertMode      InsertMode
	PKMode          PKMode
	PKFields        []string
	FieldsWhitelist []string
	DeleteEnabled   bool
	TombstonePolicy TombstonePolicy
	AutoCreate      bool
	AutoEvolve      bool

	MaxRetries   uint
	RetryBackoff time.Duration
}

// NewConfig returns a Config with default values.
func NewConfig() Config {
	return Config{
		Driver:          "sqlite",
		DSN:             "",
		Dialect:         "",
		TableNameFormat: "${topic}",
		BatchSize:       3000,
		InsertMode:      InsertModeInsert,
		PKMode:          PKModeNone,
		TombstonePolicy: TombstoneFail,
		AutoCreate:      false,
		AutoEvolve:      false,
		MaxRetries:      10,
		RetryBackoff:    3 * time.Second,
	}
}

// ParseConfig builds a Config from defaults, an optional JSON document and
// JDBC_SINK_* environment variables, in increasing priority.
func ParseConfig(jsonConfig []byte) (Config, error) {
	cfg := NewConfig()

	if len(jsonConfig) > 0 {
		jsonConf := struct {
			Driver          string   `json:"driver"`
			DSN             string   `json:"dsn"`
			Dialect         string   `json:"dialect"`
			TableNameFormat string   `json:"tableNameFormat"`
			BatchSize       *int     `json:"batchSize"`
			InsertMode      string   `json:"insertMode"`
			PKMode          string   `json:"pkMode"`
			PKFields        []string `json:"pkFields"`
			FieldsWhitelist []string `json:"fieldsWhitelist"`
			DeleteEnabled   *bool    `json:"deleteEnabled"`
			TombstonePolicy string   `json:"tombstonePolicy"`
			AutoCreate      *bool    `json:"autoCreate"`
			AutoEvolve      *bool    `json:"autoEvolve"`
			MaxRetries      *uint    `json:"maxRetries"`
			RetryBackoff    string   `json:"retryBackoff"`
		}{}

		if err := json.Unmarshal(jsonConfig, &jsonConf); err != nil {
			return cfg, fmt.Errorf("failed to parse JSON config: %w", err)
		}

		if jsonConf.Driver != "" {
			cfg.Driver = jsonConf.Driver
		}
		if jsonConf.DSN != "" {
			cfg.DSN = jsonConf.DSN
		}
		if jsonConf.Dialect != "" {
			cfg.Dialect = jsonConf.Dialect
		}
		if jsonConf.TableNameFormat != "" {
			cfg.TableNameFormat = jsonConf.TableNameFormat
		}
		if jsonConf.BatchSize != nil {
			cfg.BatchSize = *jsonConf.BatchSize
		}
		if jsonConf.InsertMode != "" {
			mode, err := ParseInsertMode(jsonConf.InsertMode)
			if err != nil {
				return cfg, err
			}
			cfg.InsertMode = mode
		}
		if jsonConf.PKMode != "" {
			mode, err := ParsePKMode(jsonConf.PKMode)
			if err != nil {
				return cfg, err
			}
			cfg.PKMode = mode
		}
		if jsonConf.PKFields != nil {
			cfg.PKFields = jsonConf.PKFields
		}
		if jsonConf.FieldsWhitelist != nil {
			cfg.FieldsWhitelist = jsonConf.FieldsWhitelist
		}
		if jsonConf.DeleteEnabled != nil {
			cfg.DeleteEnabled = *jsonConf.DeleteEnabled
		}
		if jsonConf.TombstonePolicy != "" {
			cfg.TombstonePolicy = TombstonePolicy(strings.ToLower(jsonConf.TombstonePolicy))
		}
		if jsonConf.AutoCreate != nil {
			cfg.AutoCreate = *jsonConf.AutoCreate
		}
		if jsonConf.AutoEvolve != nil {
			cfg.AutoEvolve = *jsonConf.AutoEvolve
		}
		if jsonConf.MaxRetries != nil {
			cfg.MaxRetries = *jsonConf.MaxRetries
		}
		if jsonConf.RetryBackoff != "" {
			d, err := time.ParseDuration(jsonConf.RetryBackoff)
			if err != nil {
				return cfg, fmt.Errorf("invalid retryBackoff: %w", err)
			}
			cfg.RetryBackoff = d
		}
	}

	// Environment variables take the highest priority.
	if driver := os.Getenv("JDBC_SINK_DRIVER"); driver != "" {
		cfg.Driver = driver
	}
	if dsn := os.Getenv("JDBC_SINK_DSN"); dsn != "" {
		cfg.DSN = dsn
	}
	if dialect := os.Getenv("JDBC_SINK_DIALECT"); dialect != "" {
		cfg.Dialect = dialect
	}
	if format := os.Getenv("JDBC_SINK_TABLE_NAME_FORMAT"); format != "" {
		cfg.TableNameFormat = format
	}
	if size := os.Getenv("JDBC_SINK_BATCH_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return cfg, fmt.Errorf("invalid JDBC_SINK_BATCH_SIZE: %w", err)
		}
		cfg.BatchSize = n
	}
	if mode := os.Getenv("JDBC_SINK_INSERT_MODE"); mode != "" {
		m, err := ParseInsertMode(mode)
		if err != nil {
			return cfg, err
		}
		cfg.InsertMode = m
	}
	if mode := os.Getenv("JDBC_SINK_PK_MODE"); mode != "" {
		m, err := ParsePKMode(mode)
		if err != nil {
			return cfg, err
		}
		cfg.PKMode = m
	}
	if fields := os.Getenv("JDBC_SINK_PK_FIELDS"); fields != "" {
		cfg.PKFields = splitList(fields)
	}
	if fields := os.Getenv("JDBC_SINK_FIELDS_WHITELIST"); fields != "" {
		cfg.FieldsWhitelist = splitList(fields)
	}
	if err := envBool("JDBC_SINK_DELETE_ENABLED", &cfg.DeleteEnabled); err != nil {
		return cfg, err
	}
	if policy := os.Getenv("JDBC_SINK_TOMBSTONE_POLICY"); policy != "" {
		cfg.TombstonePolicy = TombstonePolicy(strings.ToLower(policy))
	}
	if err := envBool("JDBC_SINK_AUTO_CREATE", &cfg.AutoCreate); err != nil {
		return cfg, err
	}
	if err := envBool("JDBC_SINK_AUTO_EVOLVE", &cfg.AutoEvolve); err != nil {
		return cfg, err
	}
	if retries := os.Getenv("JDBC_SINK_MAX_RETRIES"); retries != "" {
		n, err := strconv.ParseUint(retries, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("invalid JDBC_SINK_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = uint(n)
	}
	if backoff := os.Getenv("JDBC_SINK_RETRY_BACKOFF"); backoff != "" {
		d, err := time.ParseDuration(backoff)
		if err != nil {
			return cfg, fmt.Errorf("invalid JDBC_SINK_RETRY_BACKOFF: %w", err)
		}
		cfg.RetryBackoff = d
	}

	return cfg, nil
}

func envBool(name string, target *bool) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*target = b
	return nil
}

// Validate checks cross-field invariants. Rules with a record-schema
// dependency (for example a configured pk field missing from the key
// schema) are deferred to metadata extraction.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return newConfigError("", "batch size must be positive, got %d", c.BatchSize)
	}
	if _, err := ParseInsertMode(string(c.InsertMode)); err != nil {
		return err
	}
	if _, err := ParsePKMode(string(c.PKMode)); err != nil {
		return err
	}
	switch c.TombstonePolicy {
	case TombstoneFail, TombstoneIgnore:
	default:
		return newConfigError("", "invalid tombstone policy: %q", c.TombstonePolicy)
	}
	for _, name := range c.PKFields {
		if !isValidIdentifier(name) {
			return newConfigError("", "invalid primary key field name: %q", name)
		}
	}
	switch c.PKMode {
	case PKModeNone:
		if len(c.PKFields) > 0 {
			return newConfigError("", "primary key fields should not be set when pk mode is %q", PKModeNone)
		}
	case PKModeKafka:
		if len(c.PKFields) != 0 && len(c.PKFields) != 3 {
			return newConfigError("",
				"primary key fields must name exactly three columns (topic, partition, offset) when pk mode is %q", PKModeKafka)
		}
	}
	if c.DeleteEnabled && c.PKMode != PKModeRecordKey {
		return newConfigError("", "delete support only works with pk mode %q", PKModeRecordKey)
	}
	return nil
}

// DialectName returns the configured dialect name, defaulting to the
// driver name when unset.
func (c Config) DialectName() string {
	if c.Dialect != "" {
		return c.Dialect
	}
	return c.Driver
}

// TableName resolves the destination table name for a topic by expanding
// the ${topic} placeholder of the table name format.
func (c Config) TableName(topic string) string {
	return strings.ReplaceAll(c.TableNameFormat, "${topic}", topic)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
