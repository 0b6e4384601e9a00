package subscribe

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkissick-del/unraid-mcp/internal/metrics"
)

const defaultQueueSize = 64

// Event is one next frame delivered for a subscription. Seq starts at 1
// and increases by exactly one per event for the lifetime of the
// subscription id.
type Event struct {
	SubscriptionID string
	Seq            uint64
	Data           json.RawMessage
	ReceivedAt     time.Time
}

// Terminal reports that a subscription has ended and will produce no more
// events. Every subscription gets exactly one Terminal.
type Terminal struct {
	SubscriptionID string
	Reason         TerminalReason
	Err            error
}

// Consumer receives the events and the terminal notification for one
// subscription. Both callbacks run on the engine goroutine and must not
// block; hand off anything slow.
type Consumer interface {
	OnEvent(Event)
	OnTerminal(Terminal)
}

// queueConsumer buffers events for a Stream reader. When the buffer is
// full the incoming event is dropped rather than stalling the engine.
type queueConsumer struct {
	events   chan Event
	terminal chan Terminal
	dropped  atomic.Uint64
	once     sync.Once
}

func newQueueConsumer(size int) *queueConsumer {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &queueConsumer{
		events:   make(chan Event, size),
		terminal: make(chan Terminal, 1),
	}
}

func (q *queueConsumer) OnEvent(ev Event) {
	select {
	case q.events <- ev:
	default:
		q.dropped.Add(1)
		metrics.EventsDroppedTotal.Inc()
	}
}

// OnTerminal parks the terminal and closes the event channel so readers
// drain buffered events first, then observe the end of stream.
func (q *queueConsumer) OnTerminal(t Terminal) {
	q.once.Do(func() {
		q.terminal <- t
		close(q.events)
	})
}

// oneshotSignal carries whichever arrives first for a diagnostics probe.
type oneshotSignal struct {
	event *Event
	term  *Terminal
}

// oneshotConsumer reports the first event and the terminal without
// buffering a full stream. Used by TestSubscription.
type oneshotConsumer struct {
	ch       chan oneshotSignal
	sawEvent atomic.Bool
}

func newOneshotConsumer() *oneshotConsumer {
	// Capacity two: at most one event signal plus the terminal.
	return &oneshotConsumer{ch: make(chan oneshotSignal, 2)}
}

func (o *oneshotConsumer) OnEvent(ev Event) {
	if !o.sawEvent.CompareAndSwap(false, true) {
		return
	}
	o.ch <- oneshotSignal{event: &ev}
}

func (o *oneshotConsumer) OnTerminal(t Terminal) {
	o.ch <- oneshotSignal{term: &t}
}
