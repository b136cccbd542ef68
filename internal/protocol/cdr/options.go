package cdr

// EncapsulationHeader is the RTPS representation identifier for
// little-endian plain CDR followed by two zero option bytes.
var EncapsulationHeader = [4]byte{0x00, 0x01, 0x00, 0x00}

// Options selects framing around the CDR body. The zero value produces
// and expects bare bodies.
type Options struct {
	// Encapsulation prefixes encoded payloads with EncapsulationHeader and
	// requires it when decoding. Alignment is measured from the first byte
	// after the header.
	Encapsulation bool
}

func (o Options) headerLen() int {
	if o.Encapsulation {
		return len(EncapsulationHeader)
	}
	return 0
}

// Encode lays rec out per s.
func (o Options) Encode(s *Schema, rec Record) ([]byte, error) {
	capacity := o.headerLen() + 64
	if n, ok := s.FixedSize(); ok {
		capacity = o.headerLen() + n
	}
	e := &encoder{buf: make([]byte, 0, capacity)}
	if o.Encapsulation {
		e.buf = append(e.buf, EncapsulationHeader[:]...)
		e.base = len(EncapsulationHeader)
	}
	if err := e.record(s, rec); err != nil {
		path, _, cause := splitFieldError(err)
		return nil, &EncodeError{Schema: s.Name, Field: path, Err: cause}
	}
	return e.buf, nil
}

// Decode reads one instance of s from data.
func (o Options) Decode(s *Schema, data []byte) (Record, error) {
	d := &decoder{data: data}
	if o.Encapsulation {
		if len(data) < len(EncapsulationHeader) {
			return nil, &DecodeError{Schema: s.Name, Offset: 0, Len: len(data), Err: ErrTruncatedBuffer}
		}
		if data[0] != EncapsulationHeader[0] || data[1] != EncapsulationHeader[1] {
			return nil, &DecodeError{Schema: s.Name, Offset: 0, Len: len(data), Err: ErrBadEncapsulation}
		}
		d.pos = len(EncapsulationHeader)
		d.base = d.pos
	}
	rec, err := d.record(s)
	if err != nil {
		path, at, cause := splitFieldError(err)
		if at < 0 {
			at = d.pos
		}
		return nil, &DecodeError{Schema: s.Name, Field: path, Offset: at, Len: len(data), Err: cause}
	}
	return rec, nil
}
