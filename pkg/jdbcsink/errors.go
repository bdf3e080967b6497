package jdbcsink

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned by dialects that cannot express a requested
// statement shape (for example multi-row inserts or upserts). The flush
// engine translates it into a ConfigError naming the table and dialect.
var ErrUnsupported = errors.New("statement not supported by dialect")

// ConfigError reports an invalid combination of configuration and record
// schema. It is fatal and not retriable.
type ConfigError struct {
	Table   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Table == "" {
		return e.Message
	}
	return fmt.Sprintf("table %q: %s", e.Table, e.Message)
}

func newConfigError(table, format string, args ...any) *ConfigError {
	return &ConfigError{Table: table, Message: fmt.Sprintf(format, args...)}
}

// SchemaError reports that the destination table is missing, or lacks
// columns the incoming records require, and the relevant auto-DDL policy
// forbids fixing it. The missing columns are listed so an operator can
// intervene.
type SchemaError struct {
	Table          string
	MissingColumns []string
	Message        string
}

func (e *SchemaError) Error() string {
	if len(e.MissingColumns) == 0 {
		return fmt.Sprintf("table %q: %s", e.Table, e.Message)
	}
	return fmt.Sprintf("table %q: %s (missing columns: %s)",
		e.Table, e.Message, strings.Join(e.MissingColumns, ", "))
}

// CountMismatchError reports that the per-row update counts of an executed
// batch did not sum up to the batch size. Under INSERT and MULTI modes this
// means rows were silently not written and is treated as data loss.
type CountMismatchError struct {
	Table      string
	RecordType string
	Expected   int
	Actual     int64
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("table %q: update count (%d) did not sum up to total number of %s records (%d)",
		e.Table, e.Actual, e.RecordType, e.Expected)
}
