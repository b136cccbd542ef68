package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/cdrbridge/internal/testutil/testlog"
)

func TestParseEndpoint(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		in     string
		scheme string
		addr   string
	}{
		{"tcp/127.0.0.1:7447", "tcp", "127.0.0.1:7447"},
		{"tcp://localhost:7447", "tcp", "localhost:7447"},
		{"127.0.0.1:7447", "tcp", "127.0.0.1:7447"},
		{"mem/test-bus", "mem", "test-bus"},
		{"  TCP/host:1 ", "tcp", "host:1"},
	}
	for _, tc := range cases {
		scheme, addr, err := ParseEndpoint(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if scheme != tc.scheme || addr != tc.addr {
			t.Fatalf("parse %q: got=(%s,%s) want=(%s,%s)", tc.in, scheme, addr, tc.scheme, tc.addr)
		}
	}
	if _, _, err := ParseEndpoint(""); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected ErrEndpointRequired, got %v", err)
	}
	if _, _, err := ParseEndpoint("mem/"); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected ErrEndpointRequired for empty address, got %v", err)
	}
}

func TestOpenUnknownSchemeIsConnectionError(t *testing.T) {
	testlog.Start(t)
	_, err := Open(context.Background(), Config{Endpoint: "carrier-pigeon/coop"})
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectionError, got %T %v", err, err)
	}
	if ce.Endpoint != "carrier-pigeon/coop" || !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("unexpected connection error: %+v", ce)
	}
}

func TestValidateKey(t *testing.T) {
	testlog.Start(t)
	for _, ok := range []string{"cmd_vel", "add_two_ints", "robot/1/cmd_vel"} {
		if err := ValidateKey(ok); err != nil {
			t.Fatalf("key %q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a b", "/lead", "trail/", "a//b"} {
		if err := ValidateKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", bad, err)
		}
	}
}

func TestReplyStreamDeliversInOrderThenCloses(t *testing.T) {
	testlog.Start(t)
	s := NewReplyStream(context.Background())
	for i := 0; i < 5; i++ {
		if err := s.Push(Reply{Payload: []byte{byte(i)}}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	s.Finish()
	if err := s.Push(Reply{}); !errors.Is(err, ErrQueryClosed) {
		t.Fatalf("expected ErrQueryClosed after finish, got %v", err)
	}
	var got []byte
	for r := range s.C() {
		got = append(got, r.Payload[0])
	}
	if string(got) != string([]byte{0, 1, 2, 3, 4}) {
		t.Fatalf("order: got=%v", got)
	}
}

func TestReplyStreamStopsOnContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := NewReplyStream(ctx)
	_ = s.Push(Reply{Payload: []byte{1}})
	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.C():
			if !ok {
				if !s.Finished() {
					t.Fatalf("stream closed without finishing")
				}
				return
			}
		case <-deadline:
			t.Fatalf("stream did not close after cancel")
		}
	}
}

func TestQueryReplyHelpers(t *testing.T) {
	testlog.Start(t)
	var got []Reply
	q := NewQuery("add_two_ints", []byte{1}, func(r Reply) error {
		got = append(got, r)
		return nil
	})
	_ = q.Reply([]byte{8})
	_ = q.ReplyErr("bad input")
	if len(got) != 2 || got[0].Payload[0] != 8 {
		t.Fatalf("unexpected replies: %+v", got)
	}
	var re *ReplyError
	if !errors.As(got[1].Err, &re) || re.Message != "bad input" {
		t.Fatalf("unexpected error reply: %v", got[1].Err)
	}
}

func TestNewNodeID(t *testing.T) {
	a, b := NewNodeID("client"), NewNodeID("client")
	if a == b || len(a) != len("client-")+8 {
		t.Fatalf("node ids: %q %q", a, b)
	}
}
