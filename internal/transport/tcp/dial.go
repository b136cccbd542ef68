// Package tcp is the client side of the link protocol. Sessions connect to
// a router, which routes samples and queries between every connected node.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/protocol/link"
	"github.com/danmuck/cdrbridge/internal/protocol/session"
	"github.com/danmuck/cdrbridge/internal/transport"
)

func init() {
	transport.Register("tcp", func(ctx context.Context, addr string, cfg transport.Config) (transport.Session, error) {
		return Dial(ctx, addr, cfg)
	})
}

// Dial connects to the router at addr, retrying with backoff up to
// cfg.Session.MaxConnectAttempts, and completes the hello exchange.
func Dial(ctx context.Context, addr string, cfg transport.Config) (*Session, error) {
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.NodeID == "" {
		cfg.NodeID = transport.NewNodeID("tcp")
	}
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return nil, err
	}
	logger := logging.For("transport.tcp")
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		conn, err := dial(ctx, addr, cfg.Session)
		if err == nil {
			lc := link.NewConn(conn, cfg.Session.WriteTimeout)
			peer, herr := lc.Handshake(cfg.NodeID, cfg.Session.HandshakeTimeout)
			if herr == nil {
				logger.Info().Str("addr", addr).Str("node", cfg.NodeID).Str("peer", peer).Msg("connected")
				return newSession(lc, cfg.NodeID, peer), nil
			}
			_ = lc.Close()
			err = herr
			if errors.Is(err, link.ErrUnexpectedMessage) {
				return nil, err
			}
		}
		logger.Warn().Int("attempt", attempt).Str("addr", addr).Err(err).Msg("dial failed")
		if !shouldRetry(cfg.Session, attempt) {
			return nil, err
		}
		if err := session.SleepBackoff(ctx, cfg.Session.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func shouldRetry(cfg session.Config, attempt int) bool {
	if cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < cfg.MaxConnectAttempts
}

func dial(ctx context.Context, addr string, cfg session.Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if !cfg.TLS.Enabled {
		return rawConn, nil
	}
	tlsCfg, err := cfg.ClientTLSConfig(addr)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}
