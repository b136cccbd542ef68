package cdr

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// Decode reads a bare little-endian CDR body laid out per s. Bytes after
// the last field are ignored.
func Decode(s *Schema, data []byte) (Record, error) {
	return Options{}.Decode(s, data)
}

type decoder struct {
	data []byte
	pos  int
	base int
}

func (d *decoder) offset() int {
	return d.pos - d.base
}

func (d *decoder) fail(err error) error {
	return &fieldError{at: d.pos, err: err}
}

func (d *decoder) align(n int) error {
	off := d.offset()
	pad := align(off, n) - off
	if pad > len(d.data)-d.pos {
		return d.fail(ErrAlignmentOverrun)
	}
	d.pos += pad
	return nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || n > len(d.data)-d.pos {
		return nil, d.fail(ErrTruncatedBuffer)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) record(s *Schema) (Record, error) {
	rec := make(Record, len(s.Fields))
	for i, f := range s.Fields {
		v, err := d.value(f.Type)
		if err != nil {
			return nil, atField(f.Name, err)
		}
		rec[i] = v
	}
	return rec, nil
}

func (d *decoder) value(t Type) (any, error) {
	switch t.Kind {
	case KindBool:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case KindInt8:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return int8(b[0]), nil
	case KindUint8:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return b[0], nil
	case KindInt16:
		v, err := d.u16()
		return int16(v), err
	case KindUint16:
		return d.u16()
	case KindInt32:
		v, err := d.u32()
		return int32(v), err
	case KindUint32:
		return d.u32()
	case KindInt64:
		v, err := d.u64()
		return int64(v), err
	case KindUint64:
		return d.u64()
	case KindFloat32:
		v, err := d.u32()
		return math.Float32frombits(v), err
	case KindFloat64:
		v, err := d.u64()
		return math.Float64frombits(v), err
	case KindString:
		return d.str()
	case KindWString:
		return d.wstr()
	case KindArray:
		return d.items(*t.Elem, t.Len)
	case KindSequence:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		// Every element occupies at least one byte, so a count larger than
		// what is left cannot be satisfied.
		if uint64(n)*uint64(minSize(*t.Elem)) > uint64(d.remaining()) {
			return nil, d.fail(ErrTruncatedBuffer)
		}
		return d.items(*t.Elem, int(n))
	case KindStruct:
		return d.record(t.Schema)
	default:
		return nil, d.fail(mismatch(t, nil))
	}
}

func (d *decoder) items(t Type, n int) ([]any, error) {
	out := make([]any, n)
	for i := range out {
		v, err := d.value(t)
		if err != nil {
			return nil, atIndex(i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (d *decoder) u16() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// str reads a length-prefixed NUL-terminated string. A zero length is
// accepted as the empty string.
func (d *decoder) str() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if uint64(n) > uint64(d.remaining()) {
		return "", d.fail(ErrTruncatedBuffer)
	}
	start := d.pos
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	body := b[:len(b)-1]
	if b[len(b)-1] != 0 || !utf8.Valid(body) {
		d.pos = start
		return "", d.fail(ErrInvalidUTF8)
	}
	return string(body), nil
}

func (d *decoder) wstr() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if uint64(n)*2 > uint64(d.remaining()) {
		return "", d.fail(ErrTruncatedBuffer)
	}
	start := d.pos
	units := make([]uint16, n)
	for i := range units {
		if units[i], err = d.u16(); err != nil {
			return "", err
		}
	}
	if units[n-1] != 0 || !validUTF16(units[:n-1]) {
		d.pos = start
		return "", d.fail(ErrInvalidUTF8)
	}
	return string(utf16.Decode(units[:n-1])), nil
}

// validUTF16 rejects unpaired surrogates, which utf16.Decode would
// otherwise silently replace.
func validUTF16(units []uint16) bool {
	for i := 0; i < len(units); i++ {
		u := rune(units[i])
		if !utf16.IsSurrogate(u) {
			continue
		}
		if u >= 0xDC00 || i+1 >= len(units) {
			return false
		}
		next := rune(units[i+1])
		if next < 0xDC00 || next > 0xDFFF {
			return false
		}
		i++
	}
	return true
}

// minSize is the fewest bytes a value of type t can occupy, ignoring
// leading alignment padding.
func minSize(t Type) int {
	switch t.Kind {
	case KindString, KindWString, KindSequence:
		return 4
	case KindArray:
		return t.Len * minSize(*t.Elem)
	case KindStruct:
		total := 0
		for _, f := range t.Schema.Fields {
			total += minSize(f.Type)
		}
		return total
	default:
		return t.Kind.primitiveSize()
	}
}
