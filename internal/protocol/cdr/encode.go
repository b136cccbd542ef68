package cdr

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// Encode lays rec out as a bare little-endian CDR body.
func Encode(s *Schema, rec Record) ([]byte, error) {
	return Options{}.Encode(s, rec)
}

// encoder appends to buf. Offsets used for alignment are measured from
// base, the first byte of the CDR body, and are never reset for nested
// structs.
type encoder struct {
	buf  []byte
	base int
}

func (e *encoder) offset() int {
	return len(e.buf) - e.base
}

func (e *encoder) align(n int) {
	off := e.offset()
	for pad := align(off, n) - off; pad > 0; pad-- {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) record(s *Schema, rec Record) error {
	if len(rec) != len(s.Fields) {
		return errRecordFieldsCount
	}
	for i, f := range s.Fields {
		if err := e.value(f.Type, rec[i]); err != nil {
			return atField(f.Name, err)
		}
	}
	return nil
}

func (e *encoder) value(t Type, v any) error {
	switch t.Kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return mismatch(t, v)
		}
		if b {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case KindInt8:
		n, ok := v.(int8)
		if !ok {
			return mismatch(t, v)
		}
		e.buf = append(e.buf, byte(n))
	case KindUint8:
		n, ok := v.(uint8)
		if !ok {
			return mismatch(t, v)
		}
		e.buf = append(e.buf, n)
	case KindInt16:
		n, ok := v.(int16)
		if !ok {
			return mismatch(t, v)
		}
		e.u16(uint16(n))
	case KindUint16:
		n, ok := v.(uint16)
		if !ok {
			return mismatch(t, v)
		}
		e.u16(n)
	case KindInt32:
		n, ok := v.(int32)
		if !ok {
			return mismatch(t, v)
		}
		e.u32(uint32(n))
	case KindUint32:
		n, ok := v.(uint32)
		if !ok {
			return mismatch(t, v)
		}
		e.u32(n)
	case KindInt64:
		n, ok := v.(int64)
		if !ok {
			return mismatch(t, v)
		}
		e.u64(uint64(n))
	case KindUint64:
		n, ok := v.(uint64)
		if !ok {
			return mismatch(t, v)
		}
		e.u64(n)
	case KindFloat32:
		f, ok := v.(float32)
		if !ok {
			return mismatch(t, v)
		}
		e.u32(math.Float32bits(f))
	case KindFloat64:
		f, ok := v.(float64)
		if !ok {
			return mismatch(t, v)
		}
		e.u64(math.Float64bits(f))
	case KindString:
		str, ok := v.(string)
		if !ok {
			return mismatch(t, v)
		}
		return e.str(str)
	case KindWString:
		str, ok := v.(string)
		if !ok {
			return mismatch(t, v)
		}
		return e.wstr(str)
	case KindArray:
		items, ok := v.([]any)
		if !ok {
			return mismatch(t, v)
		}
		if len(items) != t.Len {
			return errArrayLength
		}
		return e.items(*t.Elem, items)
	case KindSequence:
		items, ok := v.([]any)
		if !ok {
			return mismatch(t, v)
		}
		if uint64(len(items)) > math.MaxUint32 {
			return errLengthOverflow
		}
		e.u32(uint32(len(items)))
		return e.items(*t.Elem, items)
	case KindStruct:
		rec, ok := v.(Record)
		if !ok {
			return mismatch(t, v)
		}
		return e.record(t.Schema, rec)
	default:
		return mismatch(t, v)
	}
	return nil
}

func (e *encoder) items(t Type, items []any) error {
	for i, item := range items {
		if err := e.value(t, item); err != nil {
			return atIndex(i, err)
		}
	}
	return nil
}

func (e *encoder) u16(v uint16) {
	e.align(2)
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.align(4)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.align(8)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// str writes the uint32 length including the NUL, the bytes, then the NUL.
func (e *encoder) str(s string) error {
	if !utf8.ValidString(s) {
		return errStringNotUTF8
	}
	if uint64(len(s))+1 > math.MaxUint32 {
		return errLengthOverflow
	}
	e.u32(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
	return nil
}

// wstr writes UTF-16LE code units, each 2-byte aligned, with a zero unit
// terminator counted in the length prefix.
func (e *encoder) wstr(s string) error {
	if !utf8.ValidString(s) {
		return errStringNotUTF8
	}
	units := utf16.Encode([]rune(s))
	if uint64(len(units))+1 > math.MaxUint32 {
		return errLengthOverflow
	}
	e.u32(uint32(len(units) + 1))
	for _, u := range units {
		e.u16(u)
	}
	e.u16(0)
	return nil
}
