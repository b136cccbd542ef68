package mem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/cdrbridge/internal/testutil/testlog"
	"github.com/danmuck/cdrbridge/internal/transport"
)

func collect(t *testing.T, ch <-chan transport.Reply) []transport.Reply {
	t.Helper()
	var out []transport.Reply
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-deadline:
			t.Fatalf("reply channel did not close")
		}
	}
}

func TestOpenThroughRegistry(t *testing.T) {
	testlog.Start(t)
	sess, err := transport.Open(context.Background(), transport.Config{Endpoint: "mem/registry-" + t.Name(), NodeID: "n1"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()
	if sess.NodeID() != "n1" {
		t.Fatalf("node id: got=%q", sess.NodeID())
	}
}

func TestPutDeliversToAllSubscribersIncludingSelf(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	pub := bus.Open("pub")
	sub := bus.Open("sub")
	defer pub.Close()
	defer sub.Close()

	var got []string
	var mu sync.Mutex
	record := func(who string) func(transport.Sample) {
		return func(s transport.Sample) {
			mu.Lock()
			got = append(got, who+":"+string(s.Payload))
			mu.Unlock()
		}
	}
	if _, err := sub.Subscribe("cmd_vel", record("sub")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := pub.Subscribe("cmd_vel", record("pub")); err != nil {
		t.Fatalf("subscribe self: %v", err)
	}
	if _, err := sub.Subscribe("other", record("other")); err != nil {
		t.Fatalf("subscribe other: %v", err)
	}
	if err := pub.Put(context.Background(), "cmd_vel", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(got) != 2 || got[0] != "sub:x" || got[1] != "pub:x" {
		t.Fatalf("deliveries: got=%v", got)
	}
}

func TestUndeclareStopsDelivery(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	s := bus.Open("")
	defer s.Close()
	n := 0
	d, err := s.Subscribe("cmd_vel", func(transport.Sample) { n++ })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = s.Put(context.Background(), "cmd_vel", nil)
	if err := d.Undeclare(); err != nil {
		t.Fatalf("undeclare: %v", err)
	}
	if err := d.Undeclare(); err != nil {
		t.Fatalf("second undeclare: %v", err)
	}
	_ = s.Put(context.Background(), "cmd_vel", nil)
	if n != 1 || bus.Subscribers("cmd_vel") != 0 {
		t.Fatalf("deliveries=%d subscribers=%d", n, bus.Subscribers("cmd_vel"))
	}
}

func TestGetBestMatchingAndAll(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	a, b, c := bus.Open("a"), bus.Open("b"), bus.Open("c")
	defer a.Close()
	defer b.Close()
	defer c.Close()
	for _, s := range []*Session{a, b} {
		name := s.NodeID()
		if _, err := s.DeclareQueryable("add_two_ints", func(q *transport.Query) {
			_ = q.Reply([]byte(name))
		}); err != nil {
			t.Fatalf("declare: %v", err)
		}
	}

	ch, err := c.Get(context.Background(), "add_two_ints", nil, transport.GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	replies := collect(t, ch)
	if len(replies) != 1 || string(replies[0].Payload) != "a" {
		t.Fatalf("best matching: got=%v", replies)
	}

	ch, err = c.Get(context.Background(), "add_two_ints", nil, transport.GetOptions{Target: transport.TargetAll})
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if replies := collect(t, ch); len(replies) != 2 {
		t.Fatalf("all: got=%d replies", len(replies))
	}
}

func TestGetWithoutResponderClosesImmediately(t *testing.T) {
	testlog.Start(t)
	s := NewBus().Open("lonely")
	defer s.Close()
	ch, err := s.Get(context.Background(), "add_two_ints", nil, transport.GetOptions{Timeout: time.Hour})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if replies := collect(t, ch); len(replies) != 0 {
		t.Fatalf("expected no replies, got=%v", replies)
	}
}

func TestGetTimeoutClosesWhileHandlerBlocks(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	s := bus.Open("slow")
	defer s.Close()
	release := make(chan struct{})
	defer close(release)
	lateErr := make(chan error, 1)
	_, err := s.DeclareQueryable("add_two_ints", func(q *transport.Query) {
		<-release
		lateErr <- q.Reply([]byte("late"))
	})
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	start := time.Now()
	ch, err := s.Get(context.Background(), "add_two_ints", nil, transport.GetOptions{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if replies := collect(t, ch); len(replies) != 0 {
		t.Fatalf("expected no replies, got=%v", replies)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
	release <- struct{}{}
	if err := <-lateErr; !errors.Is(err, transport.ErrQueryClosed) {
		t.Fatalf("late reply: expected ErrQueryClosed, got %v", err)
	}
}

func TestMultipleRepliesFromOneResponder(t *testing.T) {
	testlog.Start(t)
	s := NewBus().Open("multi")
	defer s.Close()
	_, _ = s.DeclareQueryable("add_two_ints", func(q *transport.Query) {
		_ = q.Reply([]byte{1})
		_ = q.ReplyErr("second failed")
	})
	ch, _ := s.Get(context.Background(), "add_two_ints", nil, transport.GetOptions{})
	replies := collect(t, ch)
	if len(replies) != 2 || replies[0].Err != nil || replies[1].Err == nil {
		t.Fatalf("replies: %+v", replies)
	}
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	s := bus.Open("closing")
	if _, err := s.DeclareQueryable("add_two_ints", func(*transport.Query) {}); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if bus.Queryables("add_two_ints") != 0 {
		t.Fatalf("close left queryables behind")
	}
	if err := s.Put(context.Background(), "cmd_vel", nil); !errors.Is(err, transport.ErrSessionClosed) {
		t.Fatalf("put after close: %v", err)
	}
	if _, err := s.Subscribe("cmd_vel", func(transport.Sample) {}); !errors.Is(err, transport.ErrSessionClosed) {
		t.Fatalf("subscribe after close: %v", err)
	}
	if _, err := s.Get(context.Background(), "x", nil, transport.GetOptions{}); !errors.Is(err, transport.ErrSessionClosed) {
		t.Fatalf("get after close: %v", err)
	}
}

func TestInvalidKeyRejected(t *testing.T) {
	testlog.Start(t)
	s := NewBus().Open("keys")
	defer s.Close()
	if err := s.Put(context.Background(), "bad key", nil); !errors.Is(err, transport.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
