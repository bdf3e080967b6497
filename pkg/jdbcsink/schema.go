package jdbcsink

import "fmt"

// Type identifies the logical type of a schema or field. The set mirrors
// the wire-level types the connector accepts; dialects map each one to a
// database column type.
type Type int

const (
	TypeInt8 Type = iota + 1
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeBoolean
	TypeString
	TypeBytes
	TypeStruct
)

// String returns the wire name of the type.
func (t Type) String() string {
	switch t {
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float"
	case TypeFloat64:
		return "double"
	case TypeBoolean:
		return "boolean"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeStruct:
		return "struct"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses a wire type name into a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "int8":
		return TypeInt8, nil
	case "int16":
		return TypeInt16, nil
	case "int32":
		return TypeInt32, nil
	case "int64":
		return TypeInt64, nil
	case "float", "float32":
		return TypeFloat32, nil
	case "double", "float64":
		return TypeFloat64, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "string":
		return TypeString, nil
	case "bytes":
		return TypeBytes, nil
	case "struct":
		return TypeStruct, nil
	default:
		return 0, fmt.Errorf("unknown schema type: %q", s)
	}
}

// Field is a named member of a struct schema. Field order is significant:
// it determines column order for auto-created tables.
type Field struct {
	Name   string
	Schema *Schema
}

// Schema describes the shape of a record key or value.
type Schema struct {
	Type     Type
	Name     string
	Optional bool
	Fields   []Field // populated only for TypeStruct
}

// IsPrimitive reports whether the schema is a non-struct type.
func (s *Schema) IsPrimitive() bool {
	return s != nil && s.Type != TypeStruct
}

// Field returns the named field of a struct schema.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Equal reports structural equality: same type, name, optionality and,
// for structs, the same fields in the same order.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Type != other.Type || s.Name != other.Name || s.Optional != other.Optional {
		return false
	}
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != other.Fields[i].Name {
			return false
		}
		if !s.Fields[i].Schema.Equal(other.Fields[i].Schema) {
			return false
		}
	}
	return true
}
