package link

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/cdrbridge/internal/protocol/tlv"
	"github.com/danmuck/cdrbridge/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeEveryMessage(t *testing.T) {
	testlog.Start(t)
	cases := []Message{
		{Type: MsgHello, NodeID: "router-1"},
		{Type: MsgDeclareSubscriber, ID: 1, DeclID: 7, Key: "cmd_vel"},
		{Type: MsgDeclareQueryable, ID: 2, DeclID: 8, Key: "add_two_ints"},
		{Type: MsgUndeclare, ID: 3, DeclID: 7},
		{Type: MsgPut, Key: "cmd_vel", Payload: []byte{1, 2, 3}, DeclID: 7},
		{Type: MsgQuery, ID: 99, Key: "add_two_ints", Payload: []byte{3, 0, 0, 0}, Target: TargetAll, Timeout: 5 * time.Second},
		{Type: MsgReply, ID: 99, Payload: []byte{8}},
		{Type: MsgReply, ID: 99, Payload: []byte{}, Error: "bad request"},
		{Type: MsgReplyFinal, ID: 99},
	}
	for _, in := range cases {
		f, err := Encode(in)
		if err != nil {
			t.Fatalf("%s encode: %v", MessageName(in.Type), err)
		}
		out, err := Decode(f)
		if err != nil {
			t.Fatalf("%s decode: %v", MessageName(in.Type), err)
		}
		want := in
		want.Flags = f.Header.Flags
		if len(want.Payload) == 0 {
			want.Payload = out.Payload
		}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Fatalf("%s round trip (-want +got):\n%s", MessageName(in.Type), diff)
		}
	}
}

func TestReplyFlags(t *testing.T) {
	testlog.Start(t)
	f, err := Encode(Message{Type: MsgReply, ID: 1, Payload: []byte{1}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !f.IsResponse() || f.IsError() {
		t.Fatalf("reply flags: %#x", f.Header.Flags)
	}
	f, err = Encode(Message{Type: MsgReply, ID: 1, Error: "boom"})
	if err != nil {
		t.Fatalf("encode error reply: %v", err)
	}
	if !f.IsResponse() || !f.IsError() {
		t.Fatalf("error reply flags: %#x", f.Header.Flags)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(MsgQuery, tlv.Fields{tlv.String(FieldKey, "add_two_ints")})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldPayload || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := tlv.Fields{
		tlv.String(FieldKey, "cmd_vel"),
		tlv.String(FieldPayload, "not bytes"),
	}
	err := Validate(MsgPut, fields)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.FieldID != FieldPayload || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation result: %v", err)
	}

	fields = tlv.Fields{
		tlv.String(FieldKey, "cmd_vel"),
		tlv.Bytes(FieldPayload, nil),
		tlv.String(FieldDeclID, "7"),
	}
	if err := Validate(MsgPut, fields); !errors.As(err, &ve) || ve.FieldID != FieldDeclID {
		t.Fatalf("expected optional field type mismatch, got %v", err)
	}
}

func TestValidateUnknownTypeAndFields(t *testing.T) {
	testlog.Start(t)
	if err := Validate(999, nil); err == nil {
		t.Fatalf("expected unknown message type error")
	}
	fields := tlv.Fields{tlv.U64(FieldDeclID, 1), tlv.Bytes(4242, []byte{1})}
	if err := Validate(MsgUndeclare, fields); err != nil {
		t.Fatalf("unknown fields should be ignored: %v", err)
	}
}

func TestEncodeRejectsMalformedMessage(t *testing.T) {
	testlog.Start(t)
	if _, err := Encode(Message{Type: 77}); err == nil {
		t.Fatalf("expected error for unknown message type")
	}
}

func TestHandshakeOverPipe(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	client := NewConn(a, time.Second)
	server := NewConn(b, time.Second)
	defer client.Close()
	defer server.Close()

	type result struct {
		peer string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		peer, err := server.AcceptHandshake("router", time.Second, nil)
		done <- result{peer, err}
	}()
	peer, err := client.Handshake("node-a", time.Second)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if peer != "router" {
		t.Fatalf("client saw peer=%q", peer)
	}
	res := <-done
	if res.err != nil || res.peer != "node-a" {
		t.Fatalf("server handshake: peer=%q err=%v", res.peer, res.err)
	}
}

func TestAcceptHandshakeRejectsOtherMessages(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	client := NewConn(a, time.Second)
	server := NewConn(b, time.Second)
	defer client.Close()
	defer server.Close()

	go func() {
		_ = client.Send(Message{Type: MsgPut, Key: "cmd_vel", Payload: []byte{1}})
	}()
	_, err := server.AcceptHandshake("router", time.Second, nil)
	if !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("expected ErrUnexpectedMessage, got %v", err)
	}
}

func TestMessageName(t *testing.T) {
	if MessageName(MsgReplyFinal) != "reply_final" {
		t.Fatalf("name: %s", MessageName(MsgReplyFinal))
	}
	if MessageName(1234) != "unknown_1234" {
		t.Fatalf("unknown name: %s", MessageName(1234))
	}
}

func TestAcceptHandshakeVerifyRefusesPeer(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	client := NewConn(a, time.Second)
	server := NewConn(b, time.Second)
	defer client.Close()

	refused := errors.New("not allowed")
	done := make(chan error, 1)
	go func() {
		_, err := server.AcceptHandshake("router", time.Second, func(peer string) error {
			if peer == "intruder" {
				return refused
			}
			return nil
		})
		_ = server.Close()
		done <- err
	}()
	if _, err := client.Handshake("intruder", time.Second); err == nil {
		t.Fatalf("expected client handshake to fail")
	}
	if err := <-done; !errors.Is(err, refused) {
		t.Fatalf("expected verify error, got %v", err)
	}
}
