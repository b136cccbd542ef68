package programs

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/danmuck/cdrbridge/internal/auth"
	"github.com/danmuck/cdrbridge/internal/config"
	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/observability"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/shutdown"
	"github.com/danmuck/cdrbridge/internal/transport"
	"github.com/rs/zerolog"
)

// Env is what every program runs with.
type Env struct {
	Config config.Config
	Out    io.Writer
	Err    io.Writer
	Token  *shutdown.Token
}

func (e Env) withDefaults() Env {
	if e.Out == nil {
		e.Out = os.Stdout
	}
	if e.Err == nil {
		e.Err = os.Stderr
	}
	if e.Token == nil {
		e.Token = shutdown.New()
	}
	return e
}

// console serializes writes from handler goroutines.
type console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

func newConsole(env Env) *console {
	return &console{out: env.Out, err: env.Err}
}

func (c *console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) Errorf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, format, args...)
}

// connect opens a session on cfg.Endpoint, naming the node after the
// program when no node id is configured. Dialing stops when tok trips.
func connect(program string, cfg config.Config, tok *shutdown.Token) (transport.Session, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = transport.NewNodeID(program)
	}
	ctx, cancel := tok.Context()
	defer cancel()
	return transport.Open(ctx, cfg.Transport())
}

// startAdmin serves the admin HTTP surface until tok trips. It returns nil
// when no admin address is configured.
func startAdmin(node string, cfg config.Config, tok *shutdown.Token, log zerolog.Logger) *observability.AdminServer {
	if cfg.AdminListen == "" {
		return nil
	}
	admin := observability.NewAdminServer(node, schema.Default(), logging.For("admin"))
	if cfg.AdminToken != "" {
		admin.RequireToken(auth.StaticToken{Token: cfg.AdminToken})
	}
	go func() {
		ctx, cancel := tok.Context()
		defer cancel()
		if err := admin.Serve(ctx, cfg.AdminListen); err != nil {
			log.Error().Err(err).Str("addr", cfg.AdminListen).Msg("admin server failed")
		}
	}()
	return admin
}

func expose(admin *observability.AdminServer, name string, fn func() any) {
	if admin != nil {
		admin.Expose(name, fn)
	}
}

