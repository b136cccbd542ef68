package link

import (
	"strings"
	"time"

	"github.com/danmuck/cdrbridge/internal/protocol/frame"
	"github.com/danmuck/cdrbridge/internal/protocol/tlv"
)

// Query targets.
const (
	TargetBestMatching uint8 = 0
	TargetAll          uint8 = 1
)

// Message is the decoded form of every link frame. Only the fields that
// belong to Type are encoded.
type Message struct {
	Type    uint32
	ID      uint64
	Flags   uint32
	NodeID  string
	Key     string
	DeclID  uint64
	Payload []byte
	Target  uint8
	Timeout time.Duration
	Error   string
}

func (m Message) IsError() bool {
	return m.Flags&frame.FlagIsError != 0
}

func (m Message) fields() tlv.Fields {
	var fs tlv.Fields
	switch m.Type {
	case MsgHello:
		fs = append(fs, tlv.String(FieldNodeID, m.NodeID))
	case MsgDeclareSubscriber, MsgDeclareQueryable:
		fs = append(fs, tlv.U64(FieldDeclID, m.DeclID), tlv.String(FieldKey, m.Key))
	case MsgUndeclare:
		fs = append(fs, tlv.U64(FieldDeclID, m.DeclID))
	case MsgPut:
		fs = append(fs, tlv.String(FieldKey, m.Key), tlv.Bytes(FieldPayload, m.Payload))
		if m.DeclID != 0 {
			fs = append(fs, tlv.U64(FieldDeclID, m.DeclID))
		}
	case MsgQuery:
		fs = append(fs,
			tlv.String(FieldKey, m.Key),
			tlv.Bytes(FieldPayload, m.Payload),
			tlv.U8(FieldTarget, m.Target),
			tlv.U64(FieldTimeoutMS, uint64(m.Timeout/time.Millisecond)),
		)
		if m.DeclID != 0 {
			fs = append(fs, tlv.U64(FieldDeclID, m.DeclID))
		}
	case MsgReply:
		fs = append(fs, tlv.Bytes(FieldPayload, m.Payload))
		if m.Error != "" {
			fs = append(fs, tlv.String(FieldError, m.Error))
		}
	}
	return fs
}

// Encode validates m and renders it as a frame.
func Encode(m Message) (frame.Frame, error) {
	fs := m.fields()
	if err := Validate(m.Type, fs); err != nil {
		return frame.Frame{}, err
	}
	flags := m.Flags
	switch m.Type {
	case MsgReply, MsgReplyFinal:
		flags |= frame.FlagIsResponse
	}
	if m.Type == MsgReply && m.Error != "" {
		flags |= frame.FlagIsError
	}
	return frame.New(m.Type, m.ID, flags, fs.Encode()), nil
}

// Decode validates a frame payload against its message type.
func Decode(f frame.Frame) (Message, error) {
	fs, err := tlv.Decode(f.Payload)
	if err != nil {
		return Message{}, err
	}
	if err := Validate(f.Header.MessageType, fs); err != nil {
		return Message{}, err
	}
	m := Message{
		Type:  f.Header.MessageType,
		ID:    f.Header.MessageID,
		Flags: f.Header.Flags,
	}
	if v, err := fs.GetString(FieldNodeID); err == nil {
		m.NodeID = strings.TrimSpace(v)
	}
	if v, err := fs.GetString(FieldKey); err == nil {
		m.Key = v
	}
	if v, err := fs.GetU64(FieldDeclID); err == nil {
		m.DeclID = v
	}
	if v, err := fs.GetBytes(FieldPayload); err == nil {
		m.Payload = v
	}
	if v, err := fs.GetU8(FieldTarget); err == nil {
		m.Target = v
	}
	if v, err := fs.GetU64(FieldTimeoutMS); err == nil {
		m.Timeout = time.Duration(v) * time.Millisecond
	}
	if v, err := fs.GetString(FieldError); err == nil {
		m.Error = v
	}
	return m, nil
}
