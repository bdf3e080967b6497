package jdbcsink

import "fmt"

// Default column names used by PKModeKafka when no pk fields are
// configured. Order matters: topic, partition, offset.
var defaultKafkaPKFields = []string{"__connect_topic", "__connect_partition", "__connect_offset"}

// SinkField describes one destination column derived from a record schema.
type SinkField struct {
	Name       string
	Type       Type
	Optional   bool
	PrimaryKey bool
}

// FieldsMetadata is the ordered set of key column names and the set of
// non-key column names derived from a schema pair and the primary-key
// policy. Key order equals primary-key order.
type FieldsMetadata struct {
	KeyFieldNames    []string
	NonKeyFieldNames []string
	AllFields        map[string]SinkField
}

// orderedFields returns all fields, keys first, in derivation order.
func (m *FieldsMetadata) orderedFields() []SinkField {
	fields := make([]SinkField, 0, len(m.KeyFieldNames)+len(m.NonKeyFieldNames))
	for _, name := range m.KeyFieldNames {
		fields = append(fields, m.AllFields[name])
	}
	for _, name := range m.NonKeyFieldNames {
		fields = append(fields, m.AllFields[name])
	}
	return fields
}

// ExtractFieldsMetadata derives the destination columns for a table from a
// schema pair under the given primary-key policy. It is a pure function of
// its inputs: recomputation with identical inputs yields identical output.
func ExtractFieldsMetadata(
	tableName string,
	pkMode PKMode,
	pkFields []string,
	fieldsWhitelist []string,
	pair SchemaPair,
) (*FieldsMetadata, error) {
	meta := &FieldsMetadata{AllFields: make(map[string]SinkField)}

	switch pkMode {
	case PKModeNone:
		// No key columns.
	case PKModeKafka:
		if err := extractKafkaPK(tableName, pkFields, meta); err != nil {
			return nil, err
		}
	case PKModeRecordKey:
		if err := extractRecordKeyPK(tableName, pkFields, pair.Key, meta); err != nil {
			return nil, err
		}
	case PKModeRecordValue:
		if err := extractRecordValuePK(tableName, pkFields, pair.Value, meta); err != nil {
			return nil, err
		}
	default:
		return nil, newConfigError(tableName, "invalid pk mode: %q", pkMode)
	}

	if err := extractNonKeyFields(tableName, fieldsWhitelist, pair.Value, meta); err != nil {
		return nil, err
	}

	if len(meta.KeyFieldNames) == 0 && len(meta.NonKeyFieldNames) == 0 {
		return nil, newConfigError(tableName,
			"no fields found using key schema and value schema with pk mode %q", pkMode)
	}
	return meta, nil
}

func extractKafkaPK(tableName string, pkFields []string, meta *FieldsMetadata) error {
	names := defaultKafkaPKFields
	if len(pkFields) > 0 {
		if len(pkFields) != 3 {
			return newConfigError(tableName,
				"pk mode %q requires exactly three pk fields (topic, partition, offset), got %d: %v",
				PKModeKafka, len(pkFields), pkFields)
		}
		names = pkFields
	}
	types := []Type{TypeString, TypeInt32, TypeInt64}
	for i, name := range names {
		meta.KeyFieldNames = append(meta.KeyFieldNames, name)
		meta.AllFields[name] = SinkField{Name: name, Type: types[i], PrimaryKey: true}
	}
	return nil
}

func extractRecordKeyPK(tableName string, pkFields []string, keySchema *Schema, meta *FieldsMetadata) error {
	if keySchema == nil {
		return newConfigError(tableName, "pk mode %q requires a record key schema", PKModeRecordKey)
	}
	if keySchema.IsPrimitive() {
		if len(pkFields) != 1 {
			return newConfigError(tableName,
				"pk mode %q with a primitive key schema requires exactly one pk field name, got %d",
				PKModeRecordKey, len(pkFields))
		}
		name := pkFields[0]
		meta.KeyFieldNames = append(meta.KeyFieldNames, name)
		meta.AllFields[name] = SinkField{
			Name:       name,
			Type:       keySchema.Type,
			Optional:   keySchema.Optional,
			PrimaryKey: true,
		}
		return nil
	}

	names := pkFields
	if len(names) == 0 {
		for _, f := range keySchema.Fields {
			names = append(names, f.Name)
		}
	}
	for _, name := range names {
		field, ok := keySchema.Field(name)
		if !ok {
			return newConfigError(tableName,
				"pk field %q configured for pk mode %q does not exist in the key schema: %s",
				name, PKModeRecordKey, schemaFieldNames(keySchema))
		}
		meta.KeyFieldNames = append(meta.KeyFieldNames, name)
		meta.AllFields[name] = SinkField{
			Name:       name,
			Type:       field.Schema.Type,
			Optional:   field.Schema.Optional,
			PrimaryKey: true,
		}
	}
	return nil
}

func extractRecordValuePK(tableName string, pkFields []string, valueSchema *Schema, meta *FieldsMetadata) error {
	if valueSchema == nil || valueSchema.Type != TypeStruct {
		return newConfigError(tableName, "pk mode %q requires a struct value schema", PKModeRecordValue)
	}
	names := pkFields
	if len(names) == 0 {
		for _, f := range valueSchema.Fields {
			names = append(names, f.Name)
		}
	}
	for _, name := range names {
		field, ok := valueSchema.Field(name)
		if !ok {
			return newConfigError(tableName,
				"pk field %q configured for pk mode %q does not exist in the value schema: %s",
				name, PKModeRecordValue, schemaFieldNames(valueSchema))
		}
		meta.KeyFieldNames = append(meta.KeyFieldNames, name)
		meta.AllFields[name] = SinkField{
			Name:       name,
			Type:       field.Schema.Type,
			Optional:   field.Schema.Optional,
			PrimaryKey: true,
		}
	}
	return nil
}

func extractNonKeyFields(tableName string, fieldsWhitelist []string, valueSchema *Schema, meta *FieldsMetadata) error {
	if valueSchema == nil {
		return nil
	}
	if valueSchema.Type != TypeStruct {
		return newConfigError(tableName, "value schema must be of type struct, got %q", valueSchema.Type)
	}
	whitelist := make(map[string]struct{}, len(fieldsWhitelist))
	for _, name := range fieldsWhitelist {
		whitelist[name] = struct{}{}
	}
	for _, f := range valueSchema.Fields {
		if len(whitelist) > 0 {
			if _, ok := whitelist[f.Name]; !ok {
				continue
			}
		}
		if _, isKey := meta.AllFields[f.Name]; isKey {
			continue
		}
		meta.NonKeyFieldNames = append(meta.NonKeyFieldNames, f.Name)
		meta.AllFields[f.Name] = SinkField{
			Name:     f.Name,
			Type:     f.Schema.Type,
			Optional: f.Schema.Optional,
		}
	}
	return nil
}

func schemaFieldNames(s *Schema) string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("%v", names)
}
