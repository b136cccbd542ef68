package programs

import (
	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/topic"
)

type SubscriberStatus struct {
	Topic    string `json:"topic"`
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
}

// RunSubscriber prints linear.x and angular.z of every Twist on the
// configured topic until the token trips.
func RunSubscriber(env Env) error {
	env = env.withDefaults()
	cfg, out := env.Config, newConsole(env)
	log := logging.For("subscriber")

	sess, err := connect("subscriber", cfg, env.Token)
	if err != nil {
		out.Errorf("Connection failed: %v\n", err)
		return err
	}
	defer sess.Close()

	out.Printf("cmd_vel subscriber started\n")
	out.Printf("  Connection: %s\n", cfg.Endpoint)
	out.Printf("  Topic: %s\n\n", cfg.Topic)

	sub, err := topic.SubscribeTyped(sess, cfg.Topic, schema.TwistSchema, func(tw schema.Twist) {
		out.Printf("Received: linear.x=%.3f, angular.z=%.3f\n", tw.Linear.X, tw.Angular.Z)
	}, topic.WithSubscriberCodec(cfg.Codec()))
	if err != nil {
		out.Errorf("Failed to create subscriber: %v\n", err)
		return err
	}
	defer sub.Close()

	admin := startAdmin(sess.NodeID(), cfg, env.Token, log)
	expose(admin, "subscriber", func() any {
		return SubscriberStatus{Topic: cfg.Topic, Received: sub.Received(), Dropped: sub.Dropped()}
	})

	out.Printf("Waiting for messages... (Ctrl+C to exit)\n")
	<-env.Token.Done()
	log.Info().Uint64("received", sub.Received()).Uint64("dropped", sub.Dropped()).Msg("subscriber stopped")
	out.Printf("\nStopping\n")
	return nil
}
