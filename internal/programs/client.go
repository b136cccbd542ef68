package programs

import (
	"errors"

	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/service"
)

// RunClient makes one AddTwoInts call with the configured a and b and
// prints every sum received. A call that gets no reply is reported and is
// not an error.
func RunClient(env Env) (service.Result, error) {
	env = env.withDefaults()
	cfg, out := env.Config, newConsole(env)

	sess, err := connect("client", cfg, env.Token)
	if err != nil {
		out.Errorf("Connection failed: %v\n", err)
		return service.Result{}, err
	}
	defer sess.Close()

	out.Printf("Service client started\n")
	out.Printf("  Connection: %s\n", cfg.Endpoint)
	out.Printf("  Service: %s (%s)\n\n", cfg.Service, schema.AddTwoInts.Name)
	out.Printf("Sending request: a=%d, b=%d\n", cfg.A, cfg.B)

	client := service.NewClient(sess,
		service.WithTimeout(cfg.CallTimeout),
		service.WithClientCodec(cfg.Codec()),
	)
	ctx, cancel := env.Token.Context()
	defer cancel()
	req := schema.AddTwoIntsRequest{A: cfg.A, B: cfg.B}
	sums, res, err := service.CallTyped[schema.AddTwoIntsRequest, schema.AddTwoIntsResponse](ctx, client, cfg.Service, schema.AddTwoInts, req)
	if err != nil {
		out.Errorf("Service call failed: %v\n", err)
		return res, err
	}
	for _, r := range res.Replies {
		if r.Err != nil {
			out.Errorf("Service call failed: %v\n", r.Err)
		}
	}
	for _, s := range sums {
		out.Printf("Received response: sum=%d\n", s.Sum)
	}
	var te *service.TimeoutError
	if err := res.Err(); errors.As(err, &te) {
		out.Errorf("No response: %v\n", err)
	}
	return res, nil
}
