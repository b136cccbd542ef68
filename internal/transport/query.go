package transport

import (
	"context"
	"sync"
)

// Query is one incoming request handed to a queryable.
type Query struct {
	Key     string
	Payload []byte

	reply func(Reply) error
}

// NewQuery is used by implementations; send delivers one reply to the
// querier and reports ErrQueryClosed once the query has finished.
func NewQuery(key string, payload []byte, send func(Reply) error) *Query {
	return &Query{Key: key, Payload: payload, reply: send}
}

func (q *Query) Reply(payload []byte) error {
	return q.reply(Reply{Payload: payload})
}

func (q *Query) ReplyErr(msg string) error {
	return q.reply(Reply{Err: &ReplyError{Message: msg}})
}

// ReplyStream queues replies for one Get and delivers them in order on an
// unbuffered channel, so responders never block on a slow reader.
type ReplyStream struct {
	mu       sync.Mutex
	queue    []Reply
	finished bool
	notify   chan struct{}
	out      chan Reply
	done     <-chan struct{}
}

// NewReplyStream starts the delivery goroutine. It stops when Finish has
// been called and the queue is drained, or when ctx ends.
func NewReplyStream(ctx context.Context) *ReplyStream {
	s := &ReplyStream{
		notify: make(chan struct{}, 1),
		out:    make(chan Reply),
		done:   ctx.Done(),
	}
	go s.pump()
	return s
}

func (s *ReplyStream) C() <-chan Reply {
	return s.out
}

// Push queues r. It returns ErrQueryClosed after Finish.
func (s *ReplyStream) Push(r Reply) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrQueryClosed
	}
	s.queue = append(s.queue, r)
	s.mu.Unlock()
	s.wake()
	return nil
}

// Finish marks the end of the stream. Calling it more than once is safe.
func (s *ReplyStream) Finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.wake()
}

func (s *ReplyStream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *ReplyStream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *ReplyStream) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			r := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			select {
			case s.out <- r:
				continue
			case <-s.done:
				s.Finish()
				return
			}
		}
		finished := s.finished
		s.mu.Unlock()
		if finished {
			return
		}
		select {
		case <-s.notify:
		case <-s.done:
			s.Finish()
			return
		}
	}
}
