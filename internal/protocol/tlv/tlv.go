package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is id(2) + type(1) + length(4).
const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrFieldMissing     = errors.New("tlv: field missing")
	ErrFieldType        = errors.New("tlv: field type mismatch")
)

const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one TLV entry. Values are big-endian for the integer types.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

// Fields is a decoded payload in wire order.
type Fields []Field

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: v}
}

func U8(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeU8, Value: []byte{v}}
}

func U32(id uint16, v uint32) Field {
	return Field{ID: id, Type: TypeU32, Value: binary.BigEndian.AppendUint32(nil, v)}
}

func U64(id uint16, v uint64) Field {
	return Field{ID: id, Type: TypeU64, Value: binary.BigEndian.AppendUint64(nil, v)}
}

func AppendField(dst []byte, f Field) []byte {
	dst = binary.BigEndian.AppendUint16(dst, f.ID)
	dst = append(dst, f.Type)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Value)))
	return append(dst, f.Value...)
}

// Encode concatenates fields in order.
func (fs Fields) Encode() []byte {
	n := 0
	for _, f := range fs {
		n += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, n)
	for _, f := range fs {
		out = AppendField(out, f)
	}
	return out
}

// Decode splits payload into fields. Values are copied out of payload.
func Decode(payload []byte) (Fields, error) {
	fields := make(Fields, 0, 4)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint64(len(payload)-i) < uint64(l) {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

// Get returns the first field with id.
func (fs Fields) Get(id uint16) (Field, bool) {
	for _, f := range fs {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func (fs Fields) typed(id uint16, want uint8) (Field, error) {
	f, ok := fs.Get(id)
	if !ok {
		return Field{}, fmt.Errorf("%w: id=%d", ErrFieldMissing, id)
	}
	if f.Type != want {
		return Field{}, fmt.Errorf("%w: id=%d got=%d want=%d", ErrFieldType, id, f.Type, want)
	}
	return f, nil
}

func (fs Fields) GetString(id uint16) (string, error) {
	f, err := fs.typed(id, TypeString)
	if err != nil {
		return "", err
	}
	return string(f.Value), nil
}

func (fs Fields) GetBytes(id uint16) ([]byte, error) {
	f, err := fs.typed(id, TypeBytes)
	if err != nil {
		return nil, err
	}
	return f.Value, nil
}

func (fs Fields) GetU8(id uint16) (uint8, error) {
	f, err := fs.typed(id, TypeU8)
	if err != nil {
		return 0, err
	}
	if len(f.Value) != 1 {
		return 0, fmt.Errorf("tlv: invalid u8 length: %d", len(f.Value))
	}
	return f.Value[0], nil
}

func (fs Fields) GetU32(id uint16) (uint32, error) {
	f, err := fs.typed(id, TypeU32)
	if err != nil {
		return 0, err
	}
	if len(f.Value) != 4 {
		return 0, fmt.Errorf("tlv: invalid u32 length: %d", len(f.Value))
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

func (fs Fields) GetU64(id uint16) (uint64, error) {
	f, err := fs.typed(id, TypeU64)
	if err != nil {
		return 0, err
	}
	if len(f.Value) != 8 {
		return 0, fmt.Errorf("tlv: invalid u64 length: %d", len(f.Value))
	}
	return binary.BigEndian.Uint64(f.Value), nil
}
