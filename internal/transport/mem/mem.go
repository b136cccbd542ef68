// Package mem is an in-process transport. Sessions opened on the same bus
// name see each other's publications and queryables.
package mem

import (
	"context"
	"sync"

	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/danmuck/cdrbridge/internal/transport"
)

func init() {
	transport.Register("mem", open)
}

var (
	busesMu sync.Mutex
	buses   = make(map[string]*Bus)
)

// GetBus returns the named process-wide bus, creating it on first use.
func GetBus(name string) *Bus {
	busesMu.Lock()
	defer busesMu.Unlock()
	b, ok := buses[name]
	if !ok {
		b = NewBus()
		buses[name] = b
	}
	return b
}

func open(_ context.Context, addr string, cfg transport.Config) (transport.Session, error) {
	return GetBus(addr).Open(cfg.NodeID), nil
}

type entry struct {
	id      uint64
	onPut   func(transport.Sample)
	onQuery func(*transport.Query)
}

// Bus holds the declarations of every session opened on it.
type Bus struct {
	mu         sync.RWMutex
	nextID     uint64
	subs       map[string][]*entry
	queryables map[string][]*entry
}

func NewBus() *Bus {
	return &Bus{
		subs:       make(map[string][]*entry),
		queryables: make(map[string][]*entry),
	}
}

// Open attaches a new session. An empty nodeID is replaced by a random one.
func (b *Bus) Open(nodeID string) *Session {
	if nodeID == "" {
		nodeID = transport.NewNodeID("mem")
	}
	return &Session{
		bus:    b,
		nodeID: nodeID,
		log:    logging.For("transport.mem").With().Str("node", nodeID).Logger(),
		decls:  make(map[uint64]*declaration),
	}
}

func (b *Bus) add(table map[string][]*entry, key string, e *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	e.id = b.nextID
	table[key] = append(table[key], e)
}

func (b *Bus) remove(table map[string][]*entry, key string, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := table[key]
	for i, e := range list {
		if e.id == id {
			table[key] = append(list[:i:i], list[i+1:]...)
			if len(table[key]) == 0 {
				delete(table, key)
			}
			return true
		}
	}
	return false
}

func (b *Bus) snapshot(table map[string][]*entry, key string) []*entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*entry(nil), table[key]...)
}

// Subscribers reports how many subscribers are declared on key.
func (b *Bus) Subscribers(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}

// Queryables reports how many queryables are declared on key.
func (b *Bus) Queryables(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queryables[key])
}
