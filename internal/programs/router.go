package programs

import (
	"net"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/router"
	"github.com/rs/zerolog"
)

// RunRouter serves the link protocol on the configured listen address
// until the token trips. Its routing table is served under /status/routes.
func RunRouter(env Env) error {
	env = env.withDefaults()
	out := newConsole(env)
	rcfg := env.Config.RouterConfig()
	r := router.New(rcfg)
	ln, err := r.Listen()
	if err != nil {
		out.Errorf("Listen failed: %v\n", err)
		return err
	}
	return serveRouter(env, out, r, ln, logging.For("router"))
}

func serveRouter(env Env, out *console, r *router.Router, ln net.Listener, log zerolog.Logger) error {
	admin := startAdmin(r.Config().NodeID, env.Config, env.Token, log)
	expose(admin, "routes", func() any { return r.Snapshot() })

	out.Printf("Router started\n")
	out.Printf("  Listen: %s\n", ln.Addr())
	out.Printf("  Waiting for peers... (Ctrl+C to exit)\n")

	ctx, cancel := env.Token.Context()
	defer cancel()
	if err := r.Serve(ctx, ln); err != nil {
		out.Errorf("Router failed: %v\n", err)
		return err
	}
	out.Printf("\nStopping\n")
	return nil
}
