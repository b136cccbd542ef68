package router

import "sort"

type declKind int

const (
	kindSubscriber declKind = iota
	kindQueryable
)

func (k declKind) String() string {
	if k == kindQueryable {
		return "queryable"
	}
	return "subscriber"
}

// route is one declaration owned by a peer. seq orders routes by
// declaration time across the whole router.
type route struct {
	peer   *peer
	declID uint64
	key    string
	kind   declKind
	seq    uint64
}

// table indexes routes by exact key. Callers hold Router.mu.
type table struct {
	seq        uint64
	subs       map[string][]*route
	queryables map[string][]*route
}

func newTable() *table {
	return &table{
		subs:       make(map[string][]*route),
		queryables: make(map[string][]*route),
	}
}

func (t *table) index(kind declKind) map[string][]*route {
	if kind == kindQueryable {
		return t.queryables
	}
	return t.subs
}

func (t *table) add(r *route) {
	t.seq++
	r.seq = t.seq
	idx := t.index(r.kind)
	idx[r.key] = append(idx[r.key], r)
}

func (t *table) remove(r *route) {
	idx := t.index(r.kind)
	list := idx[r.key]
	for i, cur := range list {
		if cur == r {
			idx[r.key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(idx[r.key]) == 0 {
		delete(idx, r.key)
	}
}

func (t *table) lookup(kind declKind, key string) []*route {
	return append([]*route(nil), t.index(kind)[key]...)
}

func (t *table) counts(kind declKind) map[string]int {
	out := make(map[string]int)
	for key, list := range t.index(kind) {
		out[key] = len(list)
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
