package topic

import (
	"sync/atomic"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/observability"
	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
	"github.com/danmuck/cdrbridge/internal/transport"
	"github.com/rs/zerolog"
)

type SubscriberOption func(*Subscriber)

func WithSubscriberCodec(o cdr.Options) SubscriberOption {
	return func(s *Subscriber) {
		s.codec = o
	}
}

// Subscriber decodes samples on a key and hands records to a callback.
// Undecodable samples are logged and counted, never delivered.
type Subscriber struct {
	key    string
	schema *cdr.Schema
	codec  cdr.Options
	log    zerolog.Logger
	decl   transport.Declaration

	received atomic.Uint64
	dropped  atomic.Uint64
}

func Subscribe(sess transport.Session, key string, s *cdr.Schema, fn func(cdr.Record), opts ...SubscriberOption) (*Subscriber, error) {
	return subscribe(sess, key, s, func(rec cdr.Record) error {
		fn(rec)
		return nil
	}, opts)
}

// SubscribeTyped binds each record to a T before calling fn.
func SubscribeTyped[T any](sess transport.Session, key string, s *cdr.Schema, fn func(T), opts ...SubscriberOption) (*Subscriber, error) {
	return subscribe(sess, key, s, func(rec cdr.Record) error {
		var v T
		if err := cdr.FromRecord(s, rec, &v); err != nil {
			return err
		}
		fn(v)
		return nil
	}, opts)
}

func subscribe(sess transport.Session, key string, s *cdr.Schema, deliver func(cdr.Record) error, opts []SubscriberOption) (*Subscriber, error) {
	sub := &Subscriber{
		key:    key,
		schema: s,
		log:    logging.For("topic.subscriber").With().Str("key", key).Str("schema", s.Name).Logger(),
	}
	for _, opt := range opts {
		opt(sub)
	}
	decl, err := sess.Subscribe(key, sub.handle(deliver))
	if err != nil {
		return nil, err
	}
	sub.decl = decl
	return sub, nil
}

func (s *Subscriber) handle(deliver func(cdr.Record) error) func(transport.Sample) {
	return func(smp transport.Sample) {
		rec, err := s.codec.Decode(s.schema, smp.Payload)
		observability.RecordCodec(s.schema.Name, "decode", err)
		observability.RecordTopicMessage(s.key, "in", err)
		if err != nil {
			s.dropped.Add(1)
			s.log.Warn().Int("len", len(smp.Payload)).Err(err).Msg("decode failed")
			return
		}
		if err := deliver(rec); err != nil {
			s.dropped.Add(1)
			s.log.Warn().Err(err).Msg("bind failed")
			return
		}
		s.received.Add(1)
	}
}

func (s *Subscriber) Key() string {
	return s.key
}

// Received counts decoded samples.
func (s *Subscriber) Received() uint64 {
	return s.received.Load()
}

// Dropped counts samples that did not decode or bind.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscriber) Close() error {
	return s.decl.Undeclare()
}
