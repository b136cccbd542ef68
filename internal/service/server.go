package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/observability"
	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/transport"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Handler computes a response record for a request record. It may be
// called concurrently.
type Handler func(ctx context.Context, req cdr.Record) (cdr.Record, error)

type ServeOption func(*Responder)

// WithErrorReplies answers undecodable requests and handler failures with
// a transport error reply instead of dropping them.
func WithErrorReplies() ServeOption {
	return func(r *Responder) {
		r.errorReplies = true
	}
}

// WithRateLimit drops queries beyond limit per second with the given burst.
func WithRateLimit(limit rate.Limit, burst int) ServeOption {
	return func(r *Responder) {
		if limit > 0 {
			r.limiter = rate.NewLimiter(limit, max(burst, 1))
		}
	}
}

// WithServerCodec sets the CDR options for requests and responses.
func WithServerCodec(o cdr.Options) ServeOption {
	return func(r *Responder) {
		r.codec = o
	}
}

// Responder is a declared service. Close undeclares it and cancels the
// context passed to in-flight handlers.
type Responder struct {
	name    string
	svc     schema.Service
	handler Handler
	codec   cdr.Options
	log     zerolog.Logger

	errorReplies bool
	limiter      *rate.Limiter

	decl   transport.Declaration
	ctx    context.Context
	cancel context.CancelFunc

	handled atomic.Uint64
	dropped atomic.Uint64
}

// Serve declares a queryable on name that answers with handler.
func Serve(sess transport.Session, name string, svc schema.Service, handler Handler, opts ...ServeOption) (*Responder, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	r := &Responder{
		name:    name,
		svc:     svc,
		handler: handler,
		log:     logging.For("service.server").With().Str("service", name).Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	decl, err := sess.DeclareQueryable(name, r.serve)
	if err != nil {
		r.cancel()
		return nil, err
	}
	r.decl = decl
	r.log.Info().Str("type", svc.Name).Msg("service ready")
	return r, nil
}

// ServeTyped is Serve for a handler written against Go structs.
func ServeTyped[Req, Resp any](sess transport.Session, name string, svc schema.Service, fn func(context.Context, Req) (Resp, error), opts ...ServeOption) (*Responder, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return Serve(sess, name, svc, func(ctx context.Context, rec cdr.Record) (cdr.Record, error) {
		var req Req
		if err := cdr.FromRecord(svc.Request, rec, &req); err != nil {
			return nil, err
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return cdr.ToRecord(svc.Response, &resp)
	}, opts...)
}

func (r *Responder) Name() string {
	return r.name
}

// Handled counts queries answered with a response.
func (r *Responder) Handled() uint64 {
	return r.handled.Load()
}

// Dropped counts queries that got no response.
func (r *Responder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Responder) Close() error {
	r.cancel()
	return r.decl.Undeclare()
}

func (r *Responder) drop(q *transport.Query, result, msg string, err error) {
	r.dropped.Add(1)
	observability.RecordServiceRequest(r.name, result)
	if !r.errorReplies {
		return
	}
	if msg == "" && err != nil {
		msg = err.Error()
	}
	if rerr := q.ReplyErr(msg); rerr != nil && !errors.Is(rerr, transport.ErrQueryClosed) {
		r.log.Warn().Err(rerr).Msg("error reply failed")
	}
}

func (r *Responder) serve(q *transport.Query) {
	if r.limiter != nil && !r.limiter.Allow() {
		r.log.Warn().Msg("rate limit exceeded, dropping request")
		r.drop(q, "rate_limited", "rate limit exceeded", nil)
		return
	}

	req, err := r.codec.Decode(r.svc.Request, q.Payload)
	observability.RecordCodec(r.svc.Request.Name, "decode", err)
	if err != nil {
		r.log.Warn().
			Str("schema", r.svc.Request.Name).
			Int("len", len(q.Payload)).
			Err(err).
			Msg("request decode failed")
		r.drop(q, "decode_error", "", err)
		return
	}

	resp, err := r.handler(r.ctx, req)
	if err != nil {
		r.log.Warn().Err(err).Msg("handler failed")
		r.drop(q, "handler_error", "", err)
		return
	}
	payload, err := r.codec.Encode(r.svc.Response, resp)
	observability.RecordCodec(r.svc.Response.Name, "encode", err)
	if err != nil {
		r.log.Error().Str("schema", r.svc.Response.Name).Err(err).Msg("response encode failed")
		r.drop(q, "encode_error", "", err)
		return
	}
	if err := q.Reply(payload); err != nil {
		r.log.Warn().Err(err).Msg("reply failed")
		r.dropped.Add(1)
		observability.RecordServiceRequest(r.name, "reply_error")
		return
	}
	r.handled.Add(1)
	observability.RecordServiceRequest(r.name, "ok")
}
