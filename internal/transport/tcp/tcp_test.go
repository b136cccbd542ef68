package tcp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/cdrbridge/internal/protocol/session"
	"github.com/danmuck/cdrbridge/internal/router"
	"github.com/danmuck/cdrbridge/internal/testutil/testlog"
	"github.com/danmuck/cdrbridge/internal/transport"
)

func startRouter(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := router.New(router.Config{NodeID: "router-tcp-test"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func quickSession() session.Config {
	cfg := session.DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.HandshakeTimeout = time.Second
	cfg.MaxConnectAttempts = 2
	cfg.Backoff = session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}
	return cfg
}

func TestOpenThroughRegistry(t *testing.T) {
	testlog.Start(t)
	addr := startRouter(t)
	for _, endpoint := range []string{"tcp/" + addr, "tcp://" + addr, addr} {
		sess, err := transport.Open(context.Background(), transport.Config{Endpoint: endpoint, Session: quickSession()})
		if err != nil {
			t.Fatalf("open %q: %v", endpoint, err)
		}
		ts, ok := sess.(*Session)
		if !ok {
			t.Fatalf("open %q: got %T", endpoint, sess)
		}
		if ts.PeerID() != "router-tcp-test" || ts.NodeID() == "" {
			t.Fatalf("ids: node=%q peer=%q", ts.NodeID(), ts.PeerID())
		}
		_ = sess.Close()
	}
}

func TestDialRefusedIsConnectionError(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	start := time.Now()
	_, err = transport.Open(context.Background(), transport.Config{Endpoint: "tcp/" + addr, Session: quickSession()})
	var ce *transport.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectionError, got %T %v", err, err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("retries not bounded")
	}
}

func TestDialHonorsContext(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := quickSession()
	cfg.MaxConnectAttempts = 0
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := Dial(ctx, addr, transport.Config{Session: cfg}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDialRejectsInvalidTransportPolicy(t *testing.T) {
	testlog.Start(t)
	cfg := quickSession()
	cfg.SecurityMode = session.SecurityModeProduction
	if _, err := Dial(context.Background(), "127.0.0.1:1", transport.Config{Session: cfg}); !errors.Is(err, session.ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	testlog.Start(t)
	addr := startRouter(t)
	s, err := Dial(context.Background(), addr, transport.Config{NodeID: "closer", Session: quickSession()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("done not closed")
	}
	if err := s.Put(context.Background(), "cmd_vel", nil); !errors.Is(err, transport.ErrSessionClosed) {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Subscribe("cmd_vel", func(transport.Sample) {}); !errors.Is(err, transport.ErrSessionClosed) {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := s.Get(context.Background(), "add_two_ints", nil, transport.GetOptions{}); !errors.Is(err, transport.ErrSessionClosed) {
		t.Fatalf("get: %v", err)
	}
}

func TestGetStopsOnContextCancel(t *testing.T) {
	testlog.Start(t)
	addr := startRouter(t)
	s, err := Dial(context.Background(), addr, transport.Config{NodeID: "ctx", Session: quickSession()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()
	release := make(chan struct{})
	defer close(release)
	if _, err := s.DeclareQueryable("slow", func(q *transport.Query) { <-release }); err != nil {
		t.Fatalf("declare: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Get(ctx, "slow", nil, transport.GetOptions{Timeout: time.Minute})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("unexpected reply")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("channel did not close after cancel")
	}
}

func TestPutRejectsInvalidKey(t *testing.T) {
	testlog.Start(t)
	addr := startRouter(t)
	s, err := Dial(context.Background(), addr, transport.Config{Session: quickSession()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()
	if err := s.Put(context.Background(), "has space", nil); !errors.Is(err, transport.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
