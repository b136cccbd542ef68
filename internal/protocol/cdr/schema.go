package cdr

import (
	"fmt"
	"strings"
)

// Field is one named, typed slot in a schema.
type Field struct {
	Name string
	Type Type
}

// F is shorthand for declaring a schema field.
func F(name string, t Type) Field {
	return Field{Name: name, Type: t}
}

// Schema is an ordered field list. Field order is part of the wire
// contract; a Schema must not be mutated after Define returns it.
type Schema struct {
	Name   string
	Fields []Field

	index map[string]int
}

// Record is a positional instance of a schema: one value per field, in
// declared order. Nested structs are Records; arrays and sequences are
// []any.
type Record []any

// Define validates and builds a schema.
func Define(name string, fields ...Field) (*Schema, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty schema name", ErrInvalidSchema)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s has no fields", ErrInvalidSchema, name)
	}
	s := &Schema{
		Name:   name,
		Fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.Fields, fields)
	for i, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("%w: %s field %d has no name", ErrInvalidSchema, name, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s duplicate field %q", ErrInvalidSchema, name, f.Name)
		}
		if err := f.Type.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, name, f.Name, err)
		}
		s.index[f.Name] = i
	}
	return s, nil
}

// MustDefine is Define for package-level schema declarations.
func MustDefine(name string, fields ...Field) *Schema {
	s, err := Define(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// FieldIndex returns the position of the named field.
func (s *Schema) FieldIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// FixedSize reports the encoded size of s when no field is variable-length.
func (s *Schema) FixedSize() (int, bool) {
	return s.layoutEnd(0)
}

func (s *Schema) layoutEnd(off int) (int, bool) {
	end := off
	for _, f := range s.Fields {
		var ok bool
		if end, ok = f.Type.layoutEnd(end); !ok {
			return 0, false
		}
	}
	return end, true
}

func (s *Schema) String() string {
	return s.Name
}

// Get returns the value of the named field from rec.
func (s *Schema) Get(rec Record, name string) (any, bool) {
	i, ok := s.index[name]
	if !ok || i >= len(rec) {
		return nil, false
	}
	return rec[i], true
}

// Zero builds a record holding the zero value of every field.
func (s *Schema) Zero() Record {
	rec := make(Record, len(s.Fields))
	for i, f := range s.Fields {
		rec[i] = zeroValue(f.Type)
	}
	return rec
}

func zeroValue(t Type) any {
	switch t.Kind {
	case KindBool:
		return false
	case KindInt8:
		return int8(0)
	case KindUint8:
		return uint8(0)
	case KindInt16:
		return int16(0)
	case KindUint16:
		return uint16(0)
	case KindInt32:
		return int32(0)
	case KindUint32:
		return uint32(0)
	case KindInt64:
		return int64(0)
	case KindUint64:
		return uint64(0)
	case KindFloat32:
		return float32(0)
	case KindFloat64:
		return float64(0)
	case KindString, KindWString:
		return ""
	case KindArray:
		out := make([]any, t.Len)
		for i := range out {
			out[i] = zeroValue(*t.Elem)
		}
		return out
	case KindSequence:
		return []any{}
	case KindStruct:
		return t.Schema.Zero()
	default:
		return nil
	}
}
