package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/observability"
	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/transport"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Reply is one decoded response. Err is set instead of Record when the
// payload did not decode or the responder answered with an error.
type Reply struct {
	Record cdr.Record
	Err    error
}

// Result is everything one call collected.
type Result struct {
	Service string
	Timeout time.Duration
	Replies []Reply
	Elapsed time.Duration
}

// Records returns the successfully decoded replies in arrival order.
func (r Result) Records() []cdr.Record {
	out := make([]cdr.Record, 0, len(r.Replies))
	for _, rep := range r.Replies {
		if rep.Err == nil {
			out = append(out, rep.Record)
		}
	}
	return out
}

// First returns the first decoded reply.
func (r Result) First() (cdr.Record, bool) {
	for _, rep := range r.Replies {
		if rep.Err == nil {
			return rep.Record, true
		}
	}
	return nil, false
}

// Err is nil when at least one reply decoded. Otherwise it is a
// *TimeoutError when nothing arrived, or a *ReplyFailedError wrapping the
// last reply's error.
func (r Result) Err() error {
	if _, ok := r.First(); ok {
		return nil
	}
	if n := len(r.Replies); n > 0 {
		return &ReplyFailedError{Service: r.Service, Replies: n, Last: r.Replies[n-1].Err}
	}
	return &TimeoutError{Service: r.Service, Timeout: r.Timeout}
}

type ClientOption func(*Client)

// WithTimeout sets how long a call collects replies.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTarget selects which responders a call reaches.
func WithTarget(t transport.Target) ClientOption {
	return func(c *Client) {
		c.target = t
	}
}

// WithClientCodec sets the CDR options for requests and replies.
func WithClientCodec(o cdr.Options) ClientOption {
	return func(c *Client) {
		c.codec = o
	}
}

// Client issues service calls over one session. It is safe for concurrent
// use; each call has its own reply stream.
type Client struct {
	sess    transport.Session
	timeout time.Duration
	target  transport.Target
	codec   cdr.Options
	log     zerolog.Logger
}

func NewClient(sess transport.Session, opts ...ClientOption) *Client {
	c := &Client{
		sess:    sess,
		timeout: DefaultTimeout,
		target:  transport.TargetAll,
		log:     logging.For("service.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends req to every responder on name and collects replies until the
// stream ends or the timeout passes. Zero replies is not an error; see
// Result.Err. Only encode and transport failures are returned.
func (c *Client) Call(ctx context.Context, name string, svc schema.Service, req cdr.Record) (Result, error) {
	res := Result{Service: name, Timeout: c.timeout}
	payload, err := c.codec.Encode(svc.Request, req)
	observability.RecordCodec(svc.Request.Name, "encode", err)
	if err != nil {
		return res, err
	}

	start := time.Now()
	ch, err := c.sess.Get(ctx, name, payload, transport.GetOptions{Timeout: c.timeout, Target: c.target})
	if err != nil {
		observability.RecordServiceCall(name, "transport_error", time.Since(start))
		return res, fmt.Errorf("service: call %s: %w", name, err)
	}
	for rep := range ch {
		res.Replies = append(res.Replies, c.decodeReply(name, svc, rep))
	}
	res.Elapsed = time.Since(start)

	outcome := "ok"
	var failed *ReplyFailedError
	if err := res.Err(); errors.As(err, &failed) {
		outcome = "reply_error"
	} else if err != nil {
		outcome = "no_reply"
	}
	observability.RecordServiceCall(name, outcome, res.Elapsed)
	c.log.Debug().
		Str("service", name).
		Int("replies", len(res.Replies)).
		Dur("elapsed", res.Elapsed).
		Str("outcome", outcome).
		Msg("call finished")
	return res, nil
}

func (c *Client) decodeReply(name string, svc schema.Service, rep transport.Reply) Reply {
	if rep.Err != nil {
		c.log.Warn().Str("service", name).Err(rep.Err).Msg("error reply")
		return Reply{Err: rep.Err}
	}
	rec, err := c.codec.Decode(svc.Response, rep.Payload)
	observability.RecordCodec(svc.Response.Name, "decode", err)
	if err != nil {
		c.log.Warn().
			Str("service", name).
			Str("schema", svc.Response.Name).
			Int("len", len(rep.Payload)).
			Err(err).
			Msg("reply decode failed")
		return Reply{Err: err}
	}
	return Reply{Record: rec}
}

// CallTyped binds req and the replies to Go structs. Replies that do not
// bind are skipped; the returned slice may be empty.
func CallTyped[Req, Resp any](ctx context.Context, c *Client, name string, svc schema.Service, req Req) ([]Resp, Result, error) {
	rec, err := cdr.ToRecord(svc.Request, &req)
	if err != nil {
		return nil, Result{Service: name, Timeout: c.timeout}, err
	}
	res, err := c.Call(ctx, name, svc, rec)
	if err != nil {
		return nil, res, err
	}
	out := make([]Resp, 0, len(res.Replies))
	for _, r := range res.Records() {
		var v Resp
		if err := cdr.FromRecord(svc.Response, r, &v); err != nil {
			c.log.Warn().Str("service", name).Err(err).Msg("reply bind failed")
			continue
		}
		out = append(out, v)
	}
	return out, res, nil
}
