package programs

import (
	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/topic"
)

// PublisherStatus is served under /status/publisher.
type PublisherStatus struct {
	Topic     string  `json:"topic"`
	Linear    float64 `json:"linear"`
	Angular   float64 `json:"angular"`
	Published uint64  `json:"published"`
	Failed    uint64  `json:"failed"`
}

// RunPublisher sends a constant Twist on the configured topic every
// publish interval until the token trips.
func RunPublisher(env Env) error {
	env = env.withDefaults()
	cfg, out := env.Config, newConsole(env)
	log := logging.For("publisher")

	sess, err := connect("publisher", cfg, env.Token)
	if err != nil {
		out.Errorf("Connection failed: %v\n", err)
		return err
	}
	defer sess.Close()

	out.Printf("cmd_vel publisher started\n")
	out.Printf("  Connection: %s\n", cfg.Endpoint)
	out.Printf("  Topic: %s\n", cfg.Topic)
	out.Printf("  Velocity: linear.x=%v, angular.z=%v\n\n", cfg.Linear, cfg.Angular)

	twist := schema.NewTwist(cfg.Linear, cfg.Angular)
	pub := topic.NewPublisher(sess, cfg.Topic, schema.TwistSchema, topic.Constant(twist.Record()),
		topic.WithInterval(cfg.PublishInterval),
		topic.WithPublisherCodec(cfg.Codec()),
		topic.WithOnPublished(func(uint64, cdr.Record) {
			out.Printf("Published: linear.x=%v, angular.z=%v\n", cfg.Linear, cfg.Angular)
		}),
	)

	admin := startAdmin(sess.NodeID(), cfg, env.Token, log)
	expose(admin, "publisher", func() any {
		return PublisherStatus{
			Topic:     cfg.Topic,
			Linear:    cfg.Linear,
			Angular:   cfg.Angular,
			Published: pub.Published(),
			Failed:    pub.Failed(),
		}
	})

	if err := pub.Run(env.Token); err != nil {
		out.Errorf("Publish error: %v\n", err)
		return err
	}
	out.Printf("\nStopping\n")
	return nil
}
