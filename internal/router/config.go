package router

import (
	"strings"
	"time"

	"github.com/danmuck/cdrbridge/internal/protocol/session"
)

type Config struct {
	ListenAddr string
	NodeID     string
	// QueryTimeout applies to queries that carry none and caps those that
	// ask for more.
	QueryTimeout time.Duration
	// RequireIdentityBinding rejects peers whose hello node id differs from
	// their client certificate identity.
	RequireIdentityBinding bool
	Session                session.Config
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:   "127.0.0.1:7447",
		NodeID:       "router",
		QueryTimeout: 30 * time.Second,
		Session:      session.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = d.ListenAddr
	}
	if strings.TrimSpace(c.NodeID) == "" {
		c.NodeID = d.NodeID
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = d.QueryTimeout
	}
	c.Session = c.Session.WithDefaults()
	return c
}

func (c Config) queryTimeout(requested time.Duration) time.Duration {
	if requested <= 0 || requested > c.QueryTimeout {
		return c.QueryTimeout
	}
	return requested
}
