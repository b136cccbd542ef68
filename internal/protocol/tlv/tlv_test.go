package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTripPreservesUnknown(t *testing.T) {
	in := Fields{
		String(1, "cmd_vel"),
		Bytes(9999, []byte{0xAA, 0xBB}),
		U64(3, 1<<40),
		U8(5, 2),
	}
	out, err := Decode(in.Encode())
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
	if v, err := out.GetString(1); err != nil || v != "cmd_vel" {
		t.Fatalf("string field: got=%q err=%v", v, err)
	}
	if v, err := out.GetU64(3); err != nil || v != 1<<40 {
		t.Fatalf("u64 field: got=%d err=%v", v, err)
	}
	if v, err := out.GetU8(5); err != nil || v != 2 {
		t.Fatalf("u8 field: got=%d err=%v", v, err)
	}
}

func TestEmptyBytesFieldRoundTrip(t *testing.T) {
	out, err := Decode(Fields{Bytes(4, nil)}.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v, err := out.GetBytes(4)
	if err != nil || len(v) != 0 {
		t.Fatalf("empty bytes: got=%v err=%v", v, err)
	}
}

func TestTypedAccessorsReportMissingAndMismatch(t *testing.T) {
	fs := Fields{String(1, "x"), U32(2, 7)}
	if _, err := fs.GetU64(9); !errors.Is(err, ErrFieldMissing) {
		t.Fatalf("expected ErrFieldMissing, got %v", err)
	}
	if _, err := fs.GetU64(1); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected ErrFieldType, got %v", err)
	}
	if v, err := fs.GetU32(2); err != nil || v != 7 {
		t.Fatalf("u32: got=%d err=%v", v, err)
	}
	bad := Fields{{ID: 3, Type: TypeU64, Value: []byte{1, 2}}}
	if _, err := bad.GetU64(3); err == nil {
		t.Fatalf("expected length error for short u64")
	}
}

func TestDecodeMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := Decode(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}
