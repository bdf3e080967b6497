package jdbcsink

// Record is one change event taken from a topic partition. A nil Value
// marks a tombstone, i.e. the deletion of the row identified by the key.
// Struct-typed keys and values are represented as map[string]any and
// interpreted through their schema's field order.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64

	KeySchema   *Schema
	Key         any
	ValueSchema *Schema
	Value       any
}

// IsTombstone reports whether the record signals a deletion.
func (r Record) IsTombstone() bool {
	return r.Value == nil
}

// SchemaPair returns the record's key/value schema combination.
func (r Record) SchemaPair() SchemaPair {
	return SchemaPair{Key: r.KeySchema, Value: r.ValueSchema}
}

// SchemaPair is the combination of a record's key and value schema. All
// non-tombstone records of one batch share an equal pair; a change in the
// pair forces a flush before the new record is buffered.
type SchemaPair struct {
	Key   *Schema
	Value *Schema
}

// Equal reports structural equality of both schemas.
func (p SchemaPair) Equal(other SchemaPair) bool {
	return p.Key.Equal(other.Key) && p.Value.Equal(other.Value)
}
