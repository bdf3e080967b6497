package jdbcsink

import (
	"encoding/json"
	"fmt"
)

// envelopeSchema is the wire form of a schema inside a schema'd JSON
// envelope: primitives carry a type name, structs carry fields whose
// names live in the "field" key.
type envelopeSchema struct {
	Type     string           `json:"type"`
	Name     string           `json:"name,omitempty"`
	Optional bool             `json:"optional"`
	Field    string           `json:"field,omitempty"`
	Fields   []envelopeSchema `json:"fields,omitempty"`
}

func (es *envelopeSchema) toSchema() (*Schema, error) {
	t, err := ParseType(es.Type)
	if err != nil {
		return nil, err
	}
	s := &Schema{Type: t, Name: es.Name, Optional: es.Optional}
	if t == TypeStruct {
		for _, f := range es.Fields {
			if f.Field == "" {
				return nil, fmt.Errorf("struct schema %q has a field without a name", es.Name)
			}
			fs, err := f.toSchema()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Field, err)
			}
			s.Fields = append(s.Fields, Field{Name: f.Field, Schema: fs})
		}
	}
	return s, nil
}

// DecodeEnvelope decodes a schema'd JSON envelope of the form
// {"schema": .., "payload": ..}. Empty input yields a nil schema and nil
// value (a tombstone value or an absent key); a null payload yields a nil
// value with its schema intact.
func DecodeEnvelope(data []byte) (*Schema, any, error) {
	if len(data) == 0 {
		return nil, nil, nil
	}
	var env struct {
		Schema  *envelopeSchema `json:"schema"`
		Payload any             `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Schema == nil {
		return nil, env.Payload, nil
	}
	schema, err := env.Schema.toSchema()
	if err != nil {
		return nil, nil, err
	}
	return schema, env.Payload, nil
}
