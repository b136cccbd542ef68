package router

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/observability"
	"github.com/danmuck/cdrbridge/internal/protocol/link"
	"github.com/danmuck/cdrbridge/internal/protocol/session"
	"github.com/rs/zerolog"
)

var ErrIdentityMismatch = errors.New("router: hello node id does not match peer certificate")

// peer is one connected session.
type peer struct {
	id       uint64
	conn     *link.Conn
	nodeID   string
	identity string
	remote   string
	decls    map[uint64]*route
}

// Router routes samples and queries between connected peers.
type Router struct {
	cfg Config
	log zerolog.Logger

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	mu      sync.Mutex
	nextID  uint64
	peers   map[uint64]*peer
	table   *table
	queries map[uint64]*inflight
}

func New(cfg Config) *Router {
	cfg = cfg.withDefaults()
	return &Router{
		cfg:     cfg,
		log:     logging.For("router").With().Str("node", cfg.NodeID).Logger(),
		conns:   make(map[net.Conn]struct{}),
		peers:   make(map[uint64]*peer),
		table:   newTable(),
		queries: make(map[uint64]*inflight),
	}
}

func (r *Router) Config() Config {
	return r.cfg
}

// Run listens on cfg.ListenAddr and serves until ctx ends.
func (r *Router) Run(ctx context.Context) error {
	ln, err := r.Listen()
	if err != nil {
		return err
	}
	return r.Serve(ctx, ln)
}

// Listen opens cfg.ListenAddr, wrapped in TLS when the session config
// enables it.
func (r *Router) Listen() (net.Listener, error) {
	if err := r.cfg.Session.ValidateServerTransport(); err != nil {
		return nil, err
	}
	ln, err := r.listenOn(r.cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("addr", ln.Addr().String()).Bool("tls", r.cfg.Session.TLS.Enabled).Msg("listening")
	return ln, nil
}

func (r *Router) listenOn(addr string) (net.Listener, error) {
	if !r.cfg.Session.TLS.Enabled {
		return net.Listen("tcp", addr)
	}
	tlsCfg, err := r.cfg.Session.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", addr, tlsCfg)
}

// Serve accepts peers on ln until ctx ends, then closes every connection.
func (r *Router) Serve(ctx context.Context, ln net.Listener) error {
	if err := r.cfg.Session.ValidateServerTransport(); err != nil {
		return err
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		r.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.trackConn(conn)
		go r.handleConn(conn)
	}
}

func (r *Router) handleConn(conn net.Conn) {
	defer conn.Close()
	defer r.untrackConn(conn)
	remote := conn.RemoteAddr().String()

	identity, err := r.authenticateConn(conn)
	if err != nil {
		r.log.Warn().Str("remote", remote).Err(err).Msg("transport auth failed")
		return
	}
	lc := link.NewConn(conn, r.cfg.Session.WriteTimeout)
	nodeID, err := lc.AcceptHandshake(r.cfg.NodeID, r.cfg.Session.HandshakeTimeout, func(peer string) error {
		if r.cfg.RequireIdentityBinding && identity != "" && identity != peer {
			return fmt.Errorf("%w: node_id=%q peer_identity=%q", ErrIdentityMismatch, peer, identity)
		}
		return nil
	})
	if err != nil {
		r.log.Warn().Str("remote", remote).Err(err).Msg("handshake failed")
		return
	}

	p := r.addPeer(lc, nodeID, identity, remote)
	observability.RouterConnectionOpened()
	r.log.Info().Str("remote", remote).Str("peer", nodeID).Uint64("conn", p.id).Msg("peer connected")
	defer func() {
		r.removePeer(p)
		observability.RouterConnectionClosed()
		r.log.Info().Str("remote", remote).Str("peer", nodeID).Msg("peer disconnected")
	}()

	for {
		m, err := lc.Recv()
		if err != nil {
			return
		}
		observability.RecordRouterMessage(link.MessageName(m.Type))
		if err := r.dispatch(p, m); err != nil {
			r.log.Warn().Str("peer", nodeID).Str("message", link.MessageName(m.Type)).Err(err).Msg("dropping peer")
			return
		}
	}
}

func (r *Router) dispatch(p *peer, m link.Message) error {
	switch m.Type {
	case link.MsgDeclareSubscriber:
		r.declare(p, kindSubscriber, m)
	case link.MsgDeclareQueryable:
		r.declare(p, kindQueryable, m)
	case link.MsgUndeclare:
		r.undeclare(p, m.DeclID)
	case link.MsgPut:
		r.put(m)
	case link.MsgQuery:
		r.query(p, m)
	case link.MsgReply:
		r.reply(p, m)
	case link.MsgReplyFinal:
		r.replyFinal(p, m.ID)
	default:
		return fmt.Errorf("%w: %s", link.ErrUnexpectedMessage, link.MessageName(m.Type))
	}
	return nil
}

func (r *Router) addPeer(conn *link.Conn, nodeID, identity, remote string) *peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p := &peer{
		id:       r.nextID,
		conn:     conn,
		nodeID:   nodeID,
		identity: identity,
		remote:   remote,
		decls:    make(map[uint64]*route),
	}
	r.peers[p.id] = p
	return p
}

// removePeer drops the peer's routes and settles every query it was
// answering or waiting on.
func (r *Router) removePeer(p *peer) {
	r.mu.Lock()
	delete(r.peers, p.id)
	for _, rt := range p.decls {
		r.table.remove(rt)
	}
	p.decls = nil
	var settle []*inflight
	for rid, q := range r.queries {
		if q.caller == p {
			settle = append(settle, q)
			continue
		}
		if q.responders[rid] == p {
			delete(q.responders, rid)
			delete(r.queries, rid)
			if len(q.responders) == 0 {
				settle = append(settle, q)
			}
		}
	}
	r.mu.Unlock()
	for _, q := range settle {
		outcome := "responder_lost"
		if q.caller == p {
			outcome = "caller_lost"
		}
		r.finish(q, outcome)
	}
}

func (r *Router) declare(p *peer, kind declKind, m link.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.decls == nil {
		return
	}
	if old, ok := p.decls[m.DeclID]; ok {
		r.table.remove(old)
	}
	rt := &route{peer: p, declID: m.DeclID, key: m.Key, kind: kind}
	p.decls[m.DeclID] = rt
	r.table.add(rt)
	r.log.Debug().Str("peer", p.nodeID).Str("kind", kind.String()).Str("key", m.Key).Uint64("decl", m.DeclID).Msg("declared")
}

func (r *Router) undeclare(p *peer, declID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := p.decls[declID]
	if !ok {
		return
	}
	delete(p.decls, declID)
	r.table.remove(rt)
}

func (r *Router) put(m link.Message) {
	r.mu.Lock()
	routes := r.table.lookup(kindSubscriber, m.Key)
	r.mu.Unlock()
	for _, rt := range routes {
		err := rt.peer.conn.Send(link.Message{Type: link.MsgPut, Key: m.Key, Payload: m.Payload, DeclID: rt.declID})
		if err != nil {
			r.log.Warn().Str("peer", rt.peer.nodeID).Str("key", m.Key).Err(err).Msg("put delivery failed")
		}
	}
}

func (r *Router) trackConn(conn net.Conn) {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	r.conns[conn] = struct{}{}
}

func (r *Router) untrackConn(conn net.Conn) {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	delete(r.conns, conn)
}

func (r *Router) closeAllConns() {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	for conn := range r.conns {
		_ = conn.Close()
		delete(r.conns, conn)
	}
}

// authenticateConn completes the TLS handshake when enabled and returns
// the client certificate identity, if any.
func (r *Router) authenticateConn(conn net.Conn) (string, error) {
	mode := session.NormalizeSecurityMode(r.cfg.Session.SecurityMode)
	if !r.cfg.Session.TLS.Enabled {
		if mode == session.SecurityModeProduction {
			return "", session.ErrTLSRequired
		}
		return "", nil
	}
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return "", fmt.Errorf("router: expected tls connection")
	}
	_ = tlsConn.SetDeadline(time.Now().Add(r.cfg.Session.HandshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		return "", err
	}
	_ = tlsConn.SetDeadline(time.Time{})
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		if r.cfg.Session.RequiresPeerCert() {
			return "", session.ErrMTLSRequired
		}
		return "", nil
	}
	identity := session.PeerIdentity(state.PeerCertificates[0])
	if identity == "" {
		return "", fmt.Errorf("router: empty peer identity from certificate")
	}
	return identity, nil
}
