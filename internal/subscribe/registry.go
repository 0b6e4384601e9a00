package subscribe

import (
	"sort"
	"time"
)

type entryState int

const (
	// entryPending: registered but not yet announced on the wire. Entries
	// queue here while the connection is down and flush once it is Ready.
	entryPending entryState = iota
	// entryActive: a subscribe frame is out; events for this id are live.
	entryActive
)

// entry tracks one subscription for its whole lifetime. The sequence
// counter survives resubscribes so consumers see one uninterrupted run
// of numbers per id.
type entry struct {
	id          string
	query       string
	variables   map[string]any
	consumer    Consumer
	resubscribe bool
	state       entryState
	seq         uint64
	createdAt   time.Time
}

func (e *entry) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// registry holds all registered subscriptions. It is owned by the engine
// goroutine; nothing else reads or mutates it, so it needs no locking.
type registry struct {
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) add(e *entry) {
	r.entries[e.id] = e
}

func (r *registry) get(id string) (*entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// remove deletes and returns the entry. The second return is false when
// the id is unknown, which callers treat as a no-op.
func (r *registry) remove(id string) (*entry, bool) {
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

func (r *registry) len() int { return len(r.entries) }

func (r *registry) counts() (pending, active int) {
	for _, e := range r.entries {
		if e.state == entryActive {
			active++
		} else {
			pending++
		}
	}
	return pending, active
}

// pending returns queued entries oldest-first so the flush after a
// handshake announces subscriptions in the order they were requested.
func (r *registry) pending() []*entry {
	var out []*entry
	for _, e := range r.entries {
		if e.state == entryPending {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// invalidate handles a lost connection: every active entry either drops
// out of the registry (to be told it is disconnected) or re-queues as
// pending if it opted into resubscribe. Pending entries are untouched;
// they never made it onto the dead connection.
func (r *registry) invalidate() (requeued, dropped []*entry) {
	for id, e := range r.entries {
		if e.state != entryActive {
			continue
		}
		if e.resubscribe {
			e.state = entryPending
			requeued = append(requeued, e)
			continue
		}
		delete(r.entries, id)
		dropped = append(dropped, e)
	}
	return requeued, dropped
}

// drainAll empties the registry and returns everything that was in it,
// for terminal delivery on shutdown or retry exhaustion.
func (r *registry) drainAll() []*entry {
	out := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, e)
		delete(r.entries, id)
	}
	return out
}
