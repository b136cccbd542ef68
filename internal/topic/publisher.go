package topic

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/observability"
	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
	"github.com/danmuck/cdrbridge/internal/shutdown"
	"github.com/danmuck/cdrbridge/internal/transport"
	"github.com/rs/zerolog"
)

// DefaultInterval is the publish period when none is configured.
const DefaultInterval = time.Second

// Producer builds the record for publication number seq, starting at 0.
type Producer func(seq uint64) cdr.Record

type PublisherOption func(*Publisher)

func WithInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithPublisherCodec(o cdr.Options) PublisherOption {
	return func(p *Publisher) {
		p.codec = o
	}
}

// WithOnPublished calls fn after every successful put.
func WithOnPublished(fn func(seq uint64, rec cdr.Record)) PublisherOption {
	return func(p *Publisher) {
		p.onPublished = fn
	}
}

// Publisher puts one encoded record on a key every interval.
type Publisher struct {
	sess     transport.Session
	key      string
	schema   *cdr.Schema
	produce  Producer
	interval time.Duration
	codec    cdr.Options
	log      zerolog.Logger

	onPublished func(seq uint64, rec cdr.Record)

	seq       atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

func NewPublisher(sess transport.Session, key string, s *cdr.Schema, produce Producer, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		sess:     sess,
		key:      key,
		schema:   s,
		produce:  produce,
		interval: DefaultInterval,
		log:      logging.For("topic.publisher").With().Str("key", key).Str("schema", s.Name).Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Constant is a Producer that always returns rec.
func Constant(rec cdr.Record) Producer {
	return func(uint64) cdr.Record { return rec }
}

// Published counts successful puts.
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// Failed counts puts the transport rejected.
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}

// PublishOnce encodes the next record and puts it. Encode errors are
// returned; put errors are logged and reported as false.
func (p *Publisher) PublishOnce(ctx context.Context) (bool, error) {
	seq := p.seq.Add(1) - 1
	rec := p.produce(seq)
	payload, err := p.codec.Encode(p.schema, rec)
	observability.RecordCodec(p.schema.Name, "encode", err)
	if err != nil {
		return false, err
	}
	err = p.sess.Put(ctx, p.key, payload)
	observability.RecordTopicMessage(p.key, "out", err)
	if err != nil {
		p.failed.Add(1)
		p.log.Warn().Uint64("seq", seq).Err(err).Msg("put failed")
		return false, nil
	}
	p.published.Add(1)
	p.log.Debug().Uint64("seq", seq).Int("len", len(payload)).Msg("published")
	if p.onPublished != nil {
		p.onPublished(seq, rec)
	}
	return true, nil
}

// Run publishes until tok trips. It returns only on an encode error.
func (p *Publisher) Run(tok *shutdown.Token) error {
	ctx, cancel := tok.Context()
	defer cancel()
	p.log.Info().Dur("interval", p.interval).Msg("publishing")
	for !tok.Tripped() {
		if _, err := p.PublishOnce(ctx); err != nil {
			p.log.Error().Err(err).Msg("encode failed, stopping")
			return err
		}
		if !tok.Sleep(p.interval) {
			break
		}
	}
	p.log.Info().Uint64("published", p.Published()).Msg("publisher stopped")
	return nil
}
