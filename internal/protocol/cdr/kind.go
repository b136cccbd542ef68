package cdr

import "fmt"

// Kind is the closed set of field kinds the engine knows how to lay out.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindWString
	KindArray
	KindSequence
	KindStruct
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	KindBool:     "bool",
	KindInt8:     "int8",
	KindUint8:    "uint8",
	KindInt16:    "int16",
	KindUint16:   "uint16",
	KindInt32:    "int32",
	KindUint32:   "uint32",
	KindInt64:    "int64",
	KindUint64:   "uint64",
	KindFloat32:  "float32",
	KindFloat64:  "float64",
	KindString:   "string",
	KindWString:  "wstring",
	KindArray:    "array",
	KindSequence: "sequence",
	KindStruct:   "struct",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// primitiveSize returns the wire width of a primitive kind, or 0 for
// composite and variable-length kinds.
func (k Kind) primitiveSize() int {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 0
	}
}

// Type describes one field's wire shape. Composite types reference their
// element type or nested schema; all Types are immutable once built.
type Type struct {
	Kind   Kind
	Elem   *Type
	Len    int
	Schema *Schema
}

// Primitive and string types.
var (
	Bool    = Type{Kind: KindBool}
	Int8    = Type{Kind: KindInt8}
	Uint8   = Type{Kind: KindUint8}
	Int16   = Type{Kind: KindInt16}
	Uint16  = Type{Kind: KindUint16}
	Int32   = Type{Kind: KindInt32}
	Uint32  = Type{Kind: KindUint32}
	Int64   = Type{Kind: KindInt64}
	Uint64  = Type{Kind: KindUint64}
	Float32 = Type{Kind: KindFloat32}
	Float64 = Type{Kind: KindFloat64}
	String  = Type{Kind: KindString}
	WString = Type{Kind: KindWString}

	// Byte and Char are the ROS 2 IDL aliases for uint8.
	Byte = Uint8
	Char = Uint8
)

// Array is a fixed-length run of n elements with no count prefix.
func Array(elem Type, n int) Type {
	e := elem
	return Type{Kind: KindArray, Elem: &e, Len: n}
}

// Sequence is a uint32 count followed by that many elements.
func Sequence(elem Type) Type {
	e := elem
	return Type{Kind: KindSequence, Elem: &e}
}

// Struct nests another schema in place.
func Struct(s *Schema) Type {
	return Type{Kind: KindStruct, Schema: s}
}

func (t Type) String() string {
	switch t.Kind {
	case KindArray:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
	case KindSequence:
		return fmt.Sprintf("sequence<%s>", t.Elem)
	case KindStruct:
		if t.Schema == nil {
			return "struct<nil>"
		}
		return t.Schema.Name
	default:
		return t.Kind.String()
	}
}

func (t Type) validate() error {
	switch t.Kind {
	case KindArray:
		if t.Elem == nil {
			return fmt.Errorf("array without element type")
		}
		if t.Len <= 0 {
			return fmt.Errorf("array length must be positive, got %d", t.Len)
		}
		return t.Elem.validate()
	case KindSequence:
		if t.Elem == nil {
			return fmt.Errorf("sequence without element type")
		}
		return t.Elem.validate()
	case KindStruct:
		if t.Schema == nil {
			return fmt.Errorf("struct without schema")
		}
		return nil
	case KindInvalid:
		return fmt.Errorf("invalid kind")
	default:
		if t.Kind > KindStruct {
			return fmt.Errorf("unknown kind %d", uint8(t.Kind))
		}
		return nil
	}
}

// layoutEnd returns the offset just past a value of type t laid out at
// off, when that offset does not depend on the value itself.
func (t Type) layoutEnd(off int) (int, bool) {
	switch t.Kind {
	case KindString, KindWString, KindSequence:
		return 0, false
	case KindArray:
		end := off
		for i := 0; i < t.Len; i++ {
			var ok bool
			if end, ok = t.Elem.layoutEnd(end); !ok {
				return 0, false
			}
		}
		return end, true
	case KindStruct:
		return t.Schema.layoutEnd(off)
	default:
		n := t.Kind.primitiveSize()
		return align(off, n) + n, true
	}
}

// align rounds off up to the next multiple of n.
func align(off, n int) int {
	if n <= 1 {
		return off
	}
	return off + (n-off%n)%n
}
