package router

import (
	"time"

	"github.com/danmuck/cdrbridge/internal/observability"
	"github.com/danmuck/cdrbridge/internal/protocol/link"
)

// inflight is one routed query. Each responder gets its own router id so
// replies can be attributed without trusting the responder.
type inflight struct {
	caller     *peer
	callerID   uint64
	key        string
	responders map[uint64]*peer
	timer      *time.Timer
	done       bool
}

func (r *Router) query(p *peer, m link.Message) {
	timeout := r.cfg.queryTimeout(m.Timeout)

	r.mu.Lock()
	routes := r.table.lookup(kindQueryable, m.Key)
	if m.Target == link.TargetBestMatching && len(routes) > 1 {
		routes = routes[:1]
	}
	q := &inflight{
		caller:     p,
		callerID:   m.ID,
		key:        m.Key,
		responders: make(map[uint64]*peer, len(routes)),
	}
	sends := make(map[uint64]*route, len(routes))
	for _, rt := range routes {
		r.nextID++
		q.responders[r.nextID] = rt.peer
		r.queries[r.nextID] = q
		sends[r.nextID] = rt
	}
	if len(routes) > 0 {
		q.timer = time.AfterFunc(timeout, func() { r.finish(q, "timeout") })
	}
	r.mu.Unlock()

	r.log.Debug().
		Str("peer", p.nodeID).
		Str("key", m.Key).
		Uint64("query", m.ID).
		Int("responders", len(routes)).
		Dur("timeout", timeout).
		Msg("query")
	if len(routes) == 0 {
		r.finish(q, "no_responders")
		return
	}
	for rid, rt := range sends {
		err := rt.peer.conn.Send(link.Message{
			Type:    link.MsgQuery,
			ID:      rid,
			Key:     m.Key,
			Payload: m.Payload,
			Target:  m.Target,
			Timeout: timeout,
			DeclID:  rt.declID,
		})
		if err != nil {
			r.log.Warn().Str("peer", rt.peer.nodeID).Str("key", m.Key).Err(err).Msg("query delivery failed")
			r.replyFinal(rt.peer, rid)
		}
	}
}

// reply forwards one reply from responder p to the caller.
func (r *Router) reply(p *peer, m link.Message) {
	r.mu.Lock()
	q, ok := r.queries[m.ID]
	if ok && q.responders[m.ID] != p {
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	err := q.caller.conn.Send(link.Message{Type: link.MsgReply, ID: q.callerID, Payload: m.Payload, Error: m.Error})
	if err != nil {
		r.log.Debug().Str("peer", q.caller.nodeID).Err(err).Msg("reply forward failed")
	}
}

// replyFinal marks responder p done with router id rid.
func (r *Router) replyFinal(p *peer, rid uint64) {
	r.mu.Lock()
	q, ok := r.queries[rid]
	if !ok || q.responders[rid] != p {
		r.mu.Unlock()
		return
	}
	delete(q.responders, rid)
	delete(r.queries, rid)
	last := len(q.responders) == 0
	r.mu.Unlock()
	if last {
		r.finish(q, "complete")
	}
}

// finish ends q once and tells the caller.
func (r *Router) finish(q *inflight, outcome string) {
	r.mu.Lock()
	if q.done {
		r.mu.Unlock()
		return
	}
	q.done = true
	for rid := range q.responders {
		delete(r.queries, rid)
	}
	q.responders = nil
	if q.timer != nil {
		q.timer.Stop()
	}
	r.mu.Unlock()

	observability.RecordRouterQuery(outcome)
	if outcome == "caller_lost" {
		return
	}
	if err := q.caller.conn.Send(link.Message{Type: link.MsgReplyFinal, ID: q.callerID}); err != nil {
		r.log.Debug().Str("peer", q.caller.nodeID).Err(err).Msg("reply final not delivered")
	}
}
