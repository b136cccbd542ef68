package router

import "sort"

type PeerInfo struct {
	NodeID       string `json:"node_id"`
	Identity     string `json:"identity,omitempty"`
	RemoteAddr   string `json:"remote_addr"`
	Declarations int    `json:"declarations"`
}

type KeyInfo struct {
	Key         string `json:"key"`
	Subscribers int    `json:"subscribers"`
	Queryables  int    `json:"queryables"`
}

// Snapshot is a point-in-time view of the routing state.
type Snapshot struct {
	Peers    []PeerInfo `json:"peers"`
	Keys     []KeyInfo  `json:"keys"`
	InFlight int        `json:"in_flight"`
}

func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{Peers: make([]PeerInfo, 0, len(r.peers))}
	for _, p := range r.peers {
		snap.Peers = append(snap.Peers, PeerInfo{
			NodeID:       p.nodeID,
			Identity:     p.identity,
			RemoteAddr:   p.remote,
			Declarations: len(p.decls),
		})
	}
	sort.Slice(snap.Peers, func(i, j int) bool {
		if snap.Peers[i].NodeID != snap.Peers[j].NodeID {
			return snap.Peers[i].NodeID < snap.Peers[j].NodeID
		}
		return snap.Peers[i].RemoteAddr < snap.Peers[j].RemoteAddr
	})

	subs := r.table.counts(kindSubscriber)
	qs := r.table.counts(kindQueryable)
	all := make(map[string]int, len(subs)+len(qs))
	for k := range subs {
		all[k] = 0
	}
	for k := range qs {
		all[k] = 0
	}
	for _, key := range sortedKeys(all) {
		snap.Keys = append(snap.Keys, KeyInfo{Key: key, Subscribers: subs[key], Queryables: qs[key]})
	}

	seen := make(map[*inflight]struct{})
	for _, q := range r.queries {
		seen[q] = struct{}{}
	}
	snap.InFlight = len(seen)
	return snap
}
