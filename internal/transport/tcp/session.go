package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/protocol/link"
	"github.com/danmuck/cdrbridge/internal/transport"
	"github.com/rs/zerolog"
)

type subscription struct {
	key string
	fn  func(transport.Sample)
}

type queryable struct {
	key string
	fn  func(*transport.Query)
}

type pendingQuery struct {
	stream *transport.ReplyStream
	stop   func() bool
	timer  *time.Timer
}

// Session is a live link to a router.
type Session struct {
	conn   *link.Conn
	nodeID string
	peerID string
	log    zerolog.Logger

	nextID atomic.Uint64

	mu         sync.Mutex
	closed     bool
	subs       map[uint64]subscription
	queryables map[uint64]queryable
	pending    map[uint64]*pendingQuery

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *link.Conn, nodeID, peerID string) *Session {
	s := &Session{
		conn:       conn,
		nodeID:     nodeID,
		peerID:     peerID,
		log:        logging.For("transport.tcp").With().Str("node", nodeID).Logger(),
		subs:       make(map[uint64]subscription),
		queryables: make(map[uint64]queryable),
		pending:    make(map[uint64]*pendingQuery),
		done:       make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Session) NodeID() string {
	return s.nodeID
}

// PeerID is the router's node id from the hello exchange.
func (s *Session) PeerID() string {
	return s.peerID
}

// Done is closed once the link is gone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) send(m link.Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transport.ErrSessionClosed
	}
	if err := s.conn.Send(m); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return transport.ErrSessionClosed
		}
		return err
	}
	return nil
}

func (s *Session) Put(ctx context.Context, key string, payload []byte) error {
	if err := transport.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(link.Message{Type: link.MsgPut, Key: key, Payload: payload})
}

type declaration struct {
	sess *Session
	id   uint64
	key  string
	once sync.Once
}

func (d *declaration) Key() string {
	return d.key
}

func (d *declaration) Undeclare() error {
	var err error
	d.once.Do(func() {
		d.sess.mu.Lock()
		delete(d.sess.subs, d.id)
		delete(d.sess.queryables, d.id)
		d.sess.mu.Unlock()
		err = d.sess.send(link.Message{Type: link.MsgUndeclare, ID: d.id, DeclID: d.id})
		if errors.Is(err, transport.ErrSessionClosed) {
			err = nil
		}
	})
	return err
}

func (s *Session) declare(msgType uint32, key string, register func(id uint64)) (transport.Declaration, error) {
	if err := transport.ValidateKey(key); err != nil {
		return nil, err
	}
	id := s.nextID.Add(1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, transport.ErrSessionClosed
	}
	register(id)
	s.mu.Unlock()
	if err := s.send(link.Message{Type: msgType, ID: id, DeclID: id, Key: key}); err != nil {
		s.mu.Lock()
		delete(s.subs, id)
		delete(s.queryables, id)
		s.mu.Unlock()
		return nil, err
	}
	return &declaration{sess: s, id: id, key: key}, nil
}

// Subscribe declares a subscriber. fn runs on the session's reader
// goroutine and must not block on this session's queries.
func (s *Session) Subscribe(key string, fn func(transport.Sample)) (transport.Declaration, error) {
	return s.declare(link.MsgDeclareSubscriber, key, func(id uint64) {
		s.subs[id] = subscription{key: key, fn: fn}
	})
}

// DeclareQueryable declares a queryable. Each query runs fn on its own
// goroutine; the query is finished for this node when fn returns.
func (s *Session) DeclareQueryable(key string, fn func(*transport.Query)) (transport.Declaration, error) {
	return s.declare(link.MsgDeclareQueryable, key, func(id uint64) {
		s.queryables[id] = queryable{key: key, fn: fn}
	})
}

func (s *Session) Get(ctx context.Context, key string, payload []byte, opts transport.GetOptions) (<-chan transport.Reply, error) {
	if err := transport.ValidateKey(key); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	id := s.nextID.Add(1)
	stream := transport.NewReplyStream(ctx)
	p := &pendingQuery{stream: stream}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stream.Finish()
		return nil, transport.ErrSessionClosed
	}
	s.pending[id] = p
	p.timer = time.AfterFunc(opts.Timeout, func() { s.finishQuery(id) })
	p.stop = context.AfterFunc(ctx, func() { s.finishQuery(id) })
	s.mu.Unlock()

	err := s.send(link.Message{
		Type:    link.MsgQuery,
		ID:      id,
		Key:     key,
		Payload: payload,
		Target:  uint8(opts.Target),
		Timeout: opts.Timeout,
	})
	if err != nil {
		s.finishQuery(id)
		return nil, err
	}
	return stream.C(), nil
}

func (s *Session) finishQuery(id uint64) {
	s.mu.Lock()
	p, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	p.timer.Stop()
	p.stop()
	p.stream.Finish()
}

func (s *Session) readLoop() {
	defer s.shutdown()
	for {
		m, err := s.conn.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Warn().Err(err).Msg("link read failed")
			}
			return
		}
		switch m.Type {
		case link.MsgPut:
			s.deliverSample(m)
		case link.MsgQuery:
			s.serveQuery(m)
		case link.MsgReply:
			s.deliverReply(m)
		case link.MsgReplyFinal:
			s.finishQuery(m.ID)
		default:
			s.log.Warn().Str("message", link.MessageName(m.Type)).Msg("unexpected message from router")
		}
	}
}

func (s *Session) deliverSample(m link.Message) {
	s.mu.Lock()
	sub, ok := s.subs[m.DeclID]
	s.mu.Unlock()
	if !ok {
		return
	}
	sub.fn(transport.Sample{Key: m.Key, Payload: m.Payload})
}

func (s *Session) deliverReply(m link.Message) {
	s.mu.Lock()
	p, ok := s.pending[m.ID]
	s.mu.Unlock()
	if !ok {
		return
	}
	r := transport.Reply{Payload: m.Payload}
	if m.IsError() {
		r.Err = &transport.ReplyError{Message: m.Error}
	}
	_ = p.stream.Push(r)
}

func (s *Session) serveQuery(m link.Message) {
	s.mu.Lock()
	q, ok := s.queryables[m.DeclID]
	s.mu.Unlock()
	if !ok {
		_ = s.send(link.Message{Type: link.MsgReplyFinal, ID: m.ID})
		return
	}
	go func() {
		var finished atomic.Bool
		reply := func(r transport.Reply) error {
			if finished.Load() {
				return transport.ErrQueryClosed
			}
			out := link.Message{Type: link.MsgReply, ID: m.ID, Payload: r.Payload}
			if r.Err != nil {
				var re *transport.ReplyError
				if errors.As(r.Err, &re) {
					out.Error = re.Message
				} else {
					out.Error = r.Err.Error()
				}
			}
			return s.send(out)
		}
		q.fn(transport.NewQuery(m.Key, m.Payload, reply))
		finished.Store(true)
		if err := s.send(link.Message{Type: link.MsgReplyFinal, ID: m.ID}); err != nil {
			s.log.Debug().Err(err).Uint64("query", m.ID).Msg("reply final not sent")
		}
	}()
}

func (s *Session) shutdown() {
	s.mu.Lock()
	s.closed = true
	ids := make([]uint64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.finishQuery(id)
	}
	_ = s.conn.Close()
	s.closeOnce.Do(func() { close(s.done) })
}

// Close drops the link and waits for the reader to exit. Pending queries
// finish with what they have. Do not call it from a subscriber callback.
func (s *Session) Close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already {
		_ = s.conn.Close()
	}
	<-s.done
	return nil
}
