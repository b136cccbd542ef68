package link

import (
	"fmt"

	"github.com/danmuck/cdrbridge/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs carried in frame.Header.MessageType.
const (
	MsgHello             uint32 = 1
	MsgDeclareSubscriber uint32 = 2
	MsgDeclareQueryable  uint32 = 3
	MsgUndeclare         uint32 = 4
	MsgPut               uint32 = 5
	MsgQuery             uint32 = 6
	MsgReply             uint32 = 7
	MsgReplyFinal        uint32 = 8
)

// Field IDs used in message payloads.
const (
	FieldNodeID    uint16 = 1
	FieldKey       uint16 = 2
	FieldDeclID    uint16 = 3
	FieldPayload   uint16 = 4
	FieldTarget    uint16 = 5
	FieldTimeoutMS uint16 = 6
	FieldError     uint16 = 7
)

var messageNames = map[uint32]string{
	MsgHello:             "hello",
	MsgDeclareSubscriber: "declare_subscriber",
	MsgDeclareQueryable:  "declare_queryable",
	MsgUndeclare:         "undeclare",
	MsgPut:               "put",
	MsgQuery:             "query",
	MsgReply:             "reply",
	MsgReplyFinal:        "reply_final",
}

// MessageName returns a stable label for metrics and logs.
func MessageName(messageType uint32) string {
	if name, ok := messageNames[messageType]; ok {
		return name
	}
	return fmt.Sprintf("unknown_%d", messageType)
}

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("link: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("link: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgHello: {
		{FieldNodeID, tlv.TypeString},
	},
	MsgDeclareSubscriber: {
		{FieldDeclID, tlv.TypeU64},
		{FieldKey, tlv.TypeString},
	},
	MsgDeclareQueryable: {
		{FieldDeclID, tlv.TypeU64},
		{FieldKey, tlv.TypeString},
	},
	MsgUndeclare: {
		{FieldDeclID, tlv.TypeU64},
	},
	MsgPut: {
		{FieldKey, tlv.TypeString},
		{FieldPayload, tlv.TypeBytes},
	},
	MsgQuery: {
		{FieldKey, tlv.TypeString},
		{FieldPayload, tlv.TypeBytes},
		{FieldTarget, tlv.TypeU8},
		{FieldTimeoutMS, tlv.TypeU64},
	},
	MsgReply: {
		{FieldPayload, tlv.TypeBytes},
	},
	MsgReplyFinal: {},
}

// optional lists fields that may appear on a message type; when present
// their type is still checked.
var optional = map[uint32][]Requirement{
	MsgPut:   {{FieldDeclID, tlv.TypeU64}},
	MsgQuery: {{FieldDeclID, tlv.TypeU64}},
	MsgReply: {{FieldError, tlv.TypeString}},
}

// Validate enforces required fields and field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields tlv.Fields) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("link.Validate unknown message type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := fields.Get(req.ID)
		if !found {
			log.Debug().
				Str("message", MessageName(messageType)).
				Uint16("field_id", req.ID).
				Msg("link.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Str("message", MessageName(messageType)).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("link.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	for _, opt := range optional[messageType] {
		if f, found := fields.Get(opt.ID); found && f.Type != opt.Type {
			return ValidationError{MessageType: messageType, FieldID: opt.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
