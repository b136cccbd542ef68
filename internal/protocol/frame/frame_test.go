package frame

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x02, 0x06, 0, 0, 0, 3, 'k', 'e', 'y'}
	in := New(5, 42, FlagIsResponse, payload)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != int(FixedHeaderLen)+len(payload) {
		t.Fatalf("encoded length: got=%d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.MessageType != 5 || out.Header.MessageID != 42 || !out.IsResponse() || out.IsError() {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	_, err = ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on clean close, got %v", err)
	}
}

func TestReadFrameRejectsForeignHeaders(t *testing.T) {
	cases := map[string]struct {
		h    Header
		want error
	}{
		"magic":      {Header{Magic: 0xEDCE1001, Version: Version, HeaderLen: FixedHeaderLen}, ErrBadMagic},
		"version":    {Header{Magic: Magic, Version: 9, HeaderLen: FixedHeaderLen}, ErrBadVersion},
		"header len": {Header{Magic: Magic, Version: Version, HeaderLen: 40}, ErrHeaderLenInvalid},
		"payload":    {Header{Magic: Magic, Version: Version, HeaderLen: FixedHeaderLen, PayloadLen: 1 << 40}, ErrPayloadTooLarge},
	}
	for name, tc := range cases {
		_, err := ReadFrame(bytes.NewReader(EncodeHeader(tc.h)), DefaultLimits())
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}

func TestEncodeRejectsLargePayload(t *testing.T) {
	_, err := Encode(New(1, 1, 0, make([]byte, 8)), Limits{MaxPayloadBytes: 4})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestWriterDoesNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultLimits())
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			if err := w.Write(New(1, id, 0, bytes.Repeat([]byte{byte(id)}, 64))); err != nil {
				t.Errorf("write %d: %v", id, err)
			}
		}(uint64(i))
	}
	wg.Wait()

	r := NewReader(&buf, DefaultLimits())
	seen := make(map[uint64]bool)
	for i := 0; i < 32; i++ {
		f, err := r.Read()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		for _, b := range f.Payload {
			if uint64(b) != f.Header.MessageID {
				t.Fatalf("frame %d payload corrupted", f.Header.MessageID)
			}
		}
		seen[f.Header.MessageID] = true
	}
	if len(seen) != 32 {
		t.Fatalf("expected 32 distinct frames, got %d", len(seen))
	}
}
