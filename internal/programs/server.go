package programs

import (
	"context"
	"math"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/service"
	"golang.org/x/time/rate"
)

type ServerStatus struct {
	Service string `json:"service"`
	Handled uint64 `json:"handled"`
	Dropped uint64 `json:"dropped"`
}

func serveOptions(env Env) []service.ServeOption {
	cfg := env.Config
	opts := []service.ServeOption{service.WithServerCodec(cfg.Codec())}
	if cfg.ErrorReplies {
		opts = append(opts, service.WithErrorReplies())
	}
	if cfg.MaxRequestsPerSecond > 0 {
		burst := int(math.Ceil(cfg.MaxRequestsPerSecond))
		opts = append(opts, service.WithRateLimit(rate.Limit(cfg.MaxRequestsPerSecond), burst))
	}
	return opts
}

// RunServer answers AddTwoInts requests on the configured service key
// until the token trips.
func RunServer(env Env) error {
	env = env.withDefaults()
	cfg, out := env.Config, newConsole(env)
	log := logging.For("server")

	sess, err := connect("server", cfg, env.Token)
	if err != nil {
		out.Errorf("Connection failed: %v\n", err)
		return err
	}
	defer sess.Close()

	add := func(_ context.Context, req schema.AddTwoIntsRequest) (schema.AddTwoIntsResponse, error) {
		out.Printf(">> Received request: %s\n", cfg.Service)
		out.Printf("   Data: a=%d, b=%d\n", req.A, req.B)
		resp := schema.Add(req)
		out.Printf("<< Sent response: sum=%d\n", resp.Sum)
		return resp, nil
	}
	responder, err := service.ServeTyped(sess, cfg.Service, schema.AddTwoInts, add, serveOptions(env)...)
	if err != nil {
		out.Errorf("Failed to create service: %v\n", err)
		return err
	}
	defer responder.Close()

	admin := startAdmin(sess.NodeID(), cfg, env.Token, log)
	expose(admin, "server", func() any {
		return ServerStatus{Service: cfg.Service, Handled: responder.Handled(), Dropped: responder.Dropped()}
	})

	out.Printf("Service server started\n")
	out.Printf("  Connection: %s\n", cfg.Endpoint)
	out.Printf("  Service: %s (%s)\n", cfg.Service, schema.AddTwoInts.Name)
	out.Printf("  Waiting for requests... (Ctrl+C to exit)\n")

	<-env.Token.Done()
	log.Info().Uint64("handled", responder.Handled()).Uint64("dropped", responder.Dropped()).Msg("server stopped")
	out.Printf("\nStopping\n")
	return nil
}
