// Package peertable holds the neighbors currently known on each local
// interface, expiring them per the TTL carried in their own advertised
// frames. The sharded-map-plus-cleanup shape is adapted directly from
// the teacher's pkg/protocols/neighbors.go neighborTable, generalized
// from four hardcoded protocol name strings to netproto.Proto and from
// a free-form NeighborRecord to netproto.PeerFields.
package peertable

import (
	"fmt"
	"sync"
	"time"

	"github.com/krisarmstrong/discoveryd/internal/netproto"
)

// Entry is one learned neighbor, keyed by (local interface, protocol,
// remote chassis, remote port).
type Entry struct {
	LocalIfIndex int
	Proto        netproto.Proto
	Fields       netproto.PeerFields
	LastSeen     time.Time
	ExpireAt     time.Time
}

// Table is the daemon's live peer table, owned exclusively by the child
// process. Safe for concurrent use since the receive dispatcher and the
// transmission scheduler may run on different goroutines.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New builds an empty peer table.
func New() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

func key(ifindex int, proto netproto.Proto, fields netproto.PeerFields) string {
	return fmt.Sprintf("%d|%s|%s|%s", ifindex, proto, fields.ChassisID, fields.PortID)
}

// Upsert records or refreshes a neighbor seen on ifindex via proto. A
// zero TTL field (the "goodbye" TLV) removes the entry immediately
// instead of inserting one that would be born already expired.
func (t *Table) Upsert(ifindex int, proto netproto.Proto, fields netproto.PeerFields) {
	k := key(ifindex, proto, fields)
	if fields.TTL == 0 {
		t.mu.Lock()
		delete(t.entries, k)
		t.mu.Unlock()
		return
	}
	now := time.Now()
	e := &Entry{
		LocalIfIndex: ifindex,
		Proto:        proto,
		Fields:       fields,
		LastSeen:     now,
		ExpireAt:     now.Add(time.Duration(fields.TTL) * time.Second),
	}
	t.mu.Lock()
	t.entries[k] = e
	t.mu.Unlock()
}

// ExpireNow removes every entry whose TTL has elapsed, returning the
// local ifindex of each removed entry (once per entry, so an ifindex can
// repeat) so callers can log a state change.
func (t *Table) ExpireNow(now time.Time) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var touched []int
	for k, e := range t.entries {
		if now.After(e.ExpireAt) {
			delete(t.entries, k)
			touched = append(touched, e.LocalIfIndex)
		}
	}
	return touched
}

// All returns a snapshot of every current entry.
func (t *Table) All() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// ForInterface returns the entries currently known for one local
// interface.
func (t *Table) ForInterface(ifindex int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Entry
	for _, e := range t.entries {
		if e.LocalIfIndex == ifindex {
			out = append(out, *e)
		}
	}
	return out
}
