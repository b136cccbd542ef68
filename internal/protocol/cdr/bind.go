package cdr

import (
	"fmt"
	"reflect"
)

// Marshal encodes a Go struct whose exported fields line up, in order,
// with the fields of s.
func Marshal(s *Schema, v any) ([]byte, error) {
	return Options{}.Marshal(s, v)
}

// Unmarshal decodes data into the struct pointed to by out.
func Unmarshal(s *Schema, data []byte, out any) error {
	return Options{}.Unmarshal(s, data, out)
}

func (o Options) Marshal(s *Schema, v any) ([]byte, error) {
	rec, err := ToRecord(s, v)
	if err != nil {
		return nil, err
	}
	return o.Encode(s, rec)
}

func (o Options) Unmarshal(s *Schema, data []byte, out any) error {
	rec, err := o.Decode(s, data)
	if err != nil {
		return err
	}
	return FromRecord(s, rec, out)
}

// ToRecord converts a struct (or pointer to one) into a Record for s.
// Exported fields are matched to schema fields by position; Go kinds must
// agree with the schema kinds, named types included.
func ToRecord(s *Schema, v any) (Record, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: nil %s", ErrBindMismatch, rv.Type())
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s wants a struct, got %s", ErrBindMismatch, s.Name, rv.Kind())
	}
	return toRecord(s, rv)
}

// FromRecord fills the struct pointed to by out from rec.
func FromRecord(s *Schema, rec Record, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s needs a non-nil struct pointer, got %T", ErrBindMismatch, s.Name, out)
	}
	return fromRecord(s, rec, rv.Elem())
}

func exportedFields(rt reflect.Type) []int {
	idx := make([]int, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).IsExported() {
			idx = append(idx, i)
		}
	}
	return idx
}

func toRecord(s *Schema, rv reflect.Value) (Record, error) {
	idx := exportedFields(rv.Type())
	if len(idx) != len(s.Fields) {
		return nil, fmt.Errorf("%w: %s has %d fields, %s has %d exported", ErrBindMismatch, s.Name, len(s.Fields), rv.Type(), len(idx))
	}
	rec := make(Record, len(s.Fields))
	for i, f := range s.Fields {
		v, err := toValue(f.Type, rv.Field(idx[i]))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
		rec[i] = v
	}
	return rec, nil
}

func toValue(t Type, rv reflect.Value) (any, error) {
	switch t.Kind {
	case KindArray, KindSequence:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("%w: want %s, got %s", ErrBindMismatch, t, rv.Type())
		}
		out := make([]any, rv.Len())
		for i := range out {
			v, err := toValue(*t.Elem, rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindStruct:
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: want %s, got %s", ErrBindMismatch, t, rv.Type())
		}
		return toRecord(t.Schema, rv)
	}
	if rv.Kind() != goKind(t.Kind) {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrBindMismatch, t, rv.Type())
	}
	switch t.Kind {
	case KindBool:
		return rv.Bool(), nil
	case KindInt8:
		return int8(rv.Int()), nil
	case KindUint8:
		return uint8(rv.Uint()), nil
	case KindInt16:
		return int16(rv.Int()), nil
	case KindUint16:
		return uint16(rv.Uint()), nil
	case KindInt32:
		return int32(rv.Int()), nil
	case KindUint32:
		return uint32(rv.Uint()), nil
	case KindInt64:
		return rv.Int(), nil
	case KindUint64:
		return rv.Uint(), nil
	case KindFloat32:
		return float32(rv.Float()), nil
	case KindFloat64:
		return rv.Float(), nil
	case KindString, KindWString:
		return rv.String(), nil
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", ErrBindMismatch, t.Kind)
}

func fromRecord(s *Schema, rec Record, rv reflect.Value) error {
	idx := exportedFields(rv.Type())
	if len(idx) != len(s.Fields) || len(rec) != len(s.Fields) {
		return fmt.Errorf("%w: %s has %d fields, %s has %d exported, record has %d", ErrBindMismatch, s.Name, len(s.Fields), rv.Type(), len(idx), len(rec))
	}
	for i, f := range s.Fields {
		if err := fromValue(f.Type, rec[i], rv.Field(idx[i])); err != nil {
			return fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
	}
	return nil
}

func fromValue(t Type, v any, dst reflect.Value) error {
	switch t.Kind {
	case KindArray, KindSequence:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%w: want []any for %s, got %T", ErrBindMismatch, t, v)
		}
		switch dst.Kind() {
		case reflect.Array:
			if dst.Len() != len(items) {
				return fmt.Errorf("%w: %s holds %d, got %d", ErrBindMismatch, dst.Type(), dst.Len(), len(items))
			}
		case reflect.Slice:
			dst.Set(reflect.MakeSlice(dst.Type(), len(items), len(items)))
		default:
			return fmt.Errorf("%w: want %s, got %s", ErrBindMismatch, t, dst.Type())
		}
		for i, item := range items {
			if err := fromValue(*t.Elem, item, dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		rec, ok := v.(Record)
		if !ok || dst.Kind() != reflect.Struct {
			return fmt.Errorf("%w: want %s, got %T into %s", ErrBindMismatch, t, v, dst.Type())
		}
		return fromRecord(t.Schema, rec, dst)
	}
	if dst.Kind() != goKind(t.Kind) {
		return fmt.Errorf("%w: want %s, got %s", ErrBindMismatch, t, dst.Type())
	}
	if rv := reflect.ValueOf(v); !rv.IsValid() || rv.Kind() != dst.Kind() {
		return fmt.Errorf("%w: record holds %T for %s", ErrBindMismatch, v, t)
	}
	switch x := v.(type) {
	case bool:
		dst.SetBool(x)
	case int8:
		dst.SetInt(int64(x))
	case int16:
		dst.SetInt(int64(x))
	case int32:
		dst.SetInt(int64(x))
	case int64:
		dst.SetInt(x)
	case uint8:
		dst.SetUint(uint64(x))
	case uint16:
		dst.SetUint(uint64(x))
	case uint32:
		dst.SetUint(uint64(x))
	case uint64:
		dst.SetUint(x)
	case float32:
		dst.SetFloat(float64(x))
	case float64:
		dst.SetFloat(x)
	case string:
		dst.SetString(x)
	default:
		return fmt.Errorf("%w: unexpected %T for %s", ErrBindMismatch, v, t)
	}
	return nil
}

func goKind(k Kind) reflect.Kind {
	switch k {
	case KindBool:
		return reflect.Bool
	case KindInt8:
		return reflect.Int8
	case KindUint8:
		return reflect.Uint8
	case KindInt16:
		return reflect.Int16
	case KindUint16:
		return reflect.Uint16
	case KindInt32:
		return reflect.Int32
	case KindUint32:
		return reflect.Uint32
	case KindInt64:
		return reflect.Int64
	case KindUint64:
		return reflect.Uint64
	case KindFloat32:
		return reflect.Float32
	case KindFloat64:
		return reflect.Float64
	case KindString, KindWString:
		return reflect.String
	default:
		return reflect.Invalid
	}
}
