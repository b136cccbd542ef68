package mem

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/cdrbridge/internal/transport"
	"github.com/rs/zerolog"
)

type declKind int

const (
	declSubscriber declKind = iota
	declQueryable
)

// Session is one participant on a Bus.
type Session struct {
	bus    *Bus
	nodeID string
	log    zerolog.Logger

	mu     sync.Mutex
	closed bool
	decls  map[uint64]*declaration
}

type declaration struct {
	sess *Session
	kind declKind
	key  string
	id   uint64
}

func (d *declaration) Key() string {
	return d.key
}

func (d *declaration) Undeclare() error {
	d.sess.mu.Lock()
	_, live := d.sess.decls[d.id]
	delete(d.sess.decls, d.id)
	d.sess.mu.Unlock()
	if !live {
		return nil
	}
	d.sess.drop(d)
	return nil
}

func (s *Session) NodeID() string {
	return s.nodeID
}

func (s *Session) table(kind declKind) map[string][]*entry {
	if kind == declQueryable {
		return s.bus.queryables
	}
	return s.bus.subs
}

func (s *Session) drop(d *declaration) {
	s.bus.remove(s.table(d.kind), d.key, d.id)
}

func (s *Session) declare(kind declKind, key string, e *entry) (transport.Declaration, error) {
	if err := transport.ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transport.ErrSessionClosed
	}
	s.bus.add(s.table(kind), key, e)
	d := &declaration{sess: s, kind: kind, key: key, id: e.id}
	s.decls[e.id] = d
	return d, nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Put delivers payload to every subscriber on key, including this
// session's own, before returning.
func (s *Session) Put(ctx context.Context, key string, payload []byte) error {
	if err := transport.ValidateKey(key); err != nil {
		return err
	}
	if s.isClosed() {
		return transport.ErrSessionClosed
	}
	for _, e := range s.bus.snapshot(s.bus.subs, key) {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.onPut(transport.Sample{Key: key, Payload: append([]byte(nil), payload...)})
	}
	return nil
}

func (s *Session) Subscribe(key string, fn func(transport.Sample)) (transport.Declaration, error) {
	return s.declare(declSubscriber, key, &entry{onPut: fn})
}

func (s *Session) DeclareQueryable(key string, fn func(*transport.Query)) (transport.Declaration, error) {
	return s.declare(declQueryable, key, &entry{onQuery: fn})
}

// Get runs each selected queryable on its own goroutine. The returned
// channel closes once every handler has returned, the timeout elapses, or
// ctx ends.
func (s *Session) Get(ctx context.Context, key string, payload []byte, opts transport.GetOptions) (<-chan transport.Reply, error) {
	if err := transport.ValidateKey(key); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, transport.ErrSessionClosed
	}
	opts = opts.WithDefaults()
	targets := s.bus.snapshot(s.bus.queryables, key)
	if opts.Target == transport.TargetBestMatching && len(targets) > 1 {
		targets = targets[:1]
	}
	stream := transport.NewReplyStream(ctx)
	s.log.Debug().
		Str("key", key).
		Int("responders", len(targets)).
		Stringer("target", opts.Target).
		Msg("query")
	if len(targets) == 0 {
		stream.Finish()
		return stream.C(), nil
	}

	timer := time.AfterFunc(opts.Timeout, stream.Finish)
	var wg sync.WaitGroup
	for _, e := range targets {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			e.onQuery(transport.NewQuery(key, append([]byte(nil), payload...), stream.Push))
		}(e)
	}
	go func() {
		wg.Wait()
		timer.Stop()
		stream.Finish()
	}()
	return stream.C(), nil
}

// Close undeclares everything this session declared.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	decls := s.decls
	s.decls = make(map[uint64]*declaration)
	s.mu.Unlock()
	for _, d := range decls {
		s.drop(d)
	}
	return nil
}
