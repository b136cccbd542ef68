package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Opener opens a session for the address part of an endpoint.
type Opener func(ctx context.Context, addr string, cfg Config) (Session, error)

var (
	openersMu sync.RWMutex
	openers   = make(map[string]Opener)
)

// Register adds a scheme. It panics on duplicates since registration
// happens from init functions.
func Register(scheme string, open Opener) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || open == nil {
		panic("transport: invalid registration")
	}
	openersMu.Lock()
	defer openersMu.Unlock()
	if _, ok := openers[scheme]; ok {
		panic("transport: scheme registered twice: " + scheme)
	}
	openers[scheme] = open
}

// Schemes lists registered schemes in sorted order.
func Schemes() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	out := make([]string, 0, len(openers))
	for scheme := range openers {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// ParseEndpoint splits "scheme/addr" or "scheme://addr". A bare host:port
// is treated as tcp.
func ParseEndpoint(endpoint string) (scheme, addr string, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", "", ErrEndpointRequired
	}
	if i := strings.Index(endpoint, "://"); i > 0 {
		scheme, addr = endpoint[:i], endpoint[i+3:]
	} else if i := strings.Index(endpoint, "/"); i > 0 && !strings.Contains(endpoint[:i], ":") {
		scheme, addr = endpoint[:i], endpoint[i+1:]
	} else {
		scheme, addr = "tcp", endpoint
	}
	scheme = strings.ToLower(scheme)
	if addr == "" {
		return "", "", fmt.Errorf("%w: %q has no address", ErrEndpointRequired, endpoint)
	}
	return scheme, addr, nil
}

// Open resolves cfg.Endpoint to a registered transport and opens a
// session. Every failure is a *ConnectionError.
func Open(ctx context.Context, cfg Config) (Session, error) {
	scheme, addr, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, &ConnectionError{Endpoint: cfg.Endpoint, Err: err}
	}
	openersMu.RLock()
	open, ok := openers[scheme]
	openersMu.RUnlock()
	if !ok {
		return nil, &ConnectionError{Endpoint: cfg.Endpoint, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)}
	}
	cfg.Session = cfg.Session.WithDefaults()
	sess, err := open(ctx, addr, cfg)
	if err != nil {
		return nil, &ConnectionError{Endpoint: cfg.Endpoint, Err: err}
	}
	return sess, nil
}
