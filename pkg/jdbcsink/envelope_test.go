package jdbcsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		schema, payload, err := DecodeEnvelope(nil)
		require.NoError(t, err)
		assert.Nil(t, schema)
		assert.Nil(t, payload)
	})

	t.Run("primitive envelope", func(t *testing.T) {
		schema, payload, err := DecodeEnvelope([]byte(`{
			"schema": {"type": "int64", "optional": false},
			"payload": 42
		}`))
		require.NoError(t, err)
		require.NotNil(t, schema)
		assert.Equal(t, TypeInt64, schema.Type)
		assert.False(t, schema.Optional)
		assert.Equal(t, float64(42), payload)
	})

	t.Run("struct envelope", func(t *testing.T) {
		schema, payload, err := DecodeEnvelope([]byte(`{
			"schema": {
				"type": "struct",
				"name": "book",
				"fields": [
					{"type": "int64", "optional": false, "field": "id"},
					{"type": "string", "optional": true, "field": "name"}
				]
			},
			"payload": {"id": 1, "name": "dune"}
		}`))
		require.NoError(t, err)
		require.NotNil(t, schema)
		assert.Equal(t, TypeStruct, schema.Type)
		assert.Equal(t, "book", schema.Name)
		require.Len(t, schema.Fields, 2)
		assert.Equal(t, "id", schema.Fields[0].Name)
		assert.Equal(t, TypeInt64, schema.Fields[0].Schema.Type)
		assert.True(t, schema.Fields[1].Schema.Optional)

		value, ok := payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "dune", value["name"])
	})

	t.Run("null payload keeps the schema", func(t *testing.T) {
		schema, payload, err := DecodeEnvelope([]byte(`{
			"schema": {"type": "struct", "fields": [{"type": "string", "optional": true, "field": "name"}]},
			"payload": null
		}`))
		require.NoError(t, err)
		assert.NotNil(t, schema)
		assert.Nil(t, payload)
	})

	t.Run("schemaless payload", func(t *testing.T) {
		schema, payload, err := DecodeEnvelope([]byte(`{"payload": {"id": 1}}`))
		require.NoError(t, err)
		assert.Nil(t, schema)
		assert.NotNil(t, payload)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, _, err := DecodeEnvelope([]byte(`{broken`))
		assert.ErrorContains(t, err, "failed to decode envelope")
	})

	t.Run("unknown schema type", func(t *testing.T) {
		_, _, err := DecodeEnvelope([]byte(`{"schema": {"type": "decimal"}, "payload": 1}`))
		assert.ErrorContains(t, err, "unknown schema type")
	})

	t.Run("struct field without a name", func(t *testing.T) {
		_, _, err := DecodeEnvelope([]byte(`{
			"schema": {"type": "struct", "fields": [{"type": "string", "optional": true}]},
			"payload": {}
		}`))
		assert.ErrorContains(t, err, "field without a name")
	})
}
