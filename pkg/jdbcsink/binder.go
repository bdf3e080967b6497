package jdbcsink

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// statementBinder is the binder shared by all bundled dialects. It emits
// bind arguments in the column order of the statements sqlBuilder
// assembles: key columns before non-key columns for insert shapes, non-key
// columns before key columns for UPDATE, key columns only for DELETE.
type statementBinder struct {
	pkMode PKMode
	pair   SchemaPair
	meta   *FieldsMetadata
	mode   InsertMode
}

func newStatementBinder(pkMode PKMode, pair SchemaPair, meta *FieldsMetadata, mode InsertMode) *statementBinder {
	return &statementBinder{pkMode: pkMode, pair: pair, meta: meta, mode: mode}
}

// BindRecord returns the bind arguments for one non-tombstone record.
func (b *statementBinder) BindRecord(record Record) ([]any, error) {
	key, err := b.keyValues(record)
	if err != nil {
		return nil, err
	}
	nonKey, err := b.nonKeyValues(record)
	if err != nil {
		return nil, err
	}
	if b.mode == InsertModeUpdate {
		return append(nonKey, key...), nil
	}
	return append(key, nonKey...), nil
}

// BindTombstoneRecord returns the key-column bind arguments for a
// tombstone record.
func (b *statementBinder) BindTombstoneRecord(record Record) ([]any, error) {
	return b.keyValues(record)
}

func (b *statementBinder) keyValues(record Record) ([]any, error) {
	switch b.pkMode {
	case PKModeNone:
		return nil, nil
	case PKModeKafka:
		return []any{record.Topic, record.Partition, record.Offset}, nil
	case PKModeRecordKey:
		if record.KeySchema.IsPrimitive() {
			v, err := coerce(record.Key, record.KeySchema.Type)
			if err != nil {
				return nil, fmt.Errorf("bind record key: %w", err)
			}
			return []any{v}, nil
		}
		return b.structValues(record.Key, record.KeySchema, b.meta.KeyFieldNames, "key")
	case PKModeRecordValue:
		return b.structValues(record.Value, record.ValueSchema, b.meta.KeyFieldNames, "value")
	default:
		return nil, newConfigError("", "invalid pk mode: %q", b.pkMode)
	}
}

func (b *statementBinder) nonKeyValues(record Record) ([]any, error) {
	return b.structValues(record.Value, record.ValueSchema, b.meta.NonKeyFieldNames, "value")
}

func (b *statementBinder) structValues(container any, schema *Schema, names []string, side string) ([]any, error) {
	if len(names) == 0 {
		return nil, nil
	}
	fields, ok := container.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record %s is not a struct", side)
	}
	values := make([]any, 0, len(names))
	for _, name := range names {
		field, found := schema.Field(name)
		if !found {
			return nil, fmt.Errorf("field %q missing from record %s schema", name, side)
		}
		raw := fields[name]
		if raw == nil && !field.Schema.Optional {
			return nil, fmt.Errorf("field %q is nil but its schema is not optional", name)
		}
		v, err := coerce(raw, field.Schema.Type)
		if err != nil {
			return nil, fmt.Errorf("bind field %q: %w", name, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// coerce converts a decoded wire value into the driver-friendly Go type
// the schema calls for. JSON decoding yields float64 for every number, so
// integer columns need the narrowing done here.
func coerce(v any, t Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return n, nil
	case TypeFloat32, TypeFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case json.Number:
			return x.Float64()
		case int, int8, int16, int32, int64:
			n, _ := toInt64(x)
			return float64(n), nil
		}
		return nil, fmt.Errorf("cannot convert %T to %s", v, t)
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot convert %T to %s", v, t)
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("cannot convert %T to %s", v, t)
	case TypeBytes:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			// The JSON converter encodes bytes as base64 text.
			decoded, err := base64.StdEncoding.DecodeString(x)
			if err != nil {
				return nil, fmt.Errorf("decode base64 bytes: %w", err)
			}
			return decoded, nil
		}
		return nil, fmt.Errorf("cannot convert %T to %s", v, t)
	default:
		return nil, fmt.Errorf("cannot bind value of schema type %s", t)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}
