package subscribe

import (
	"encoding/json"
	"testing"
)

func testEvent(seq uint64) Event {
	return Event{SubscriptionID: "sub-1", Seq: seq, Data: json.RawMessage(`{}`)}
}

func TestQueueConsumerDropsWhenFull(t *testing.T) {
	q := newQueueConsumer(2)

	q.OnEvent(testEvent(1))
	q.OnEvent(testEvent(2))
	q.OnEvent(testEvent(3))

	if got := q.dropped.Load(); got != 1 {
		t.Fatalf("expected 1 drop, got %d", got)
	}
	if len(q.events) != 2 {
		t.Fatalf("expected 2 buffered, got %d", len(q.events))
	}
	first := <-q.events
	if first.Seq != 1 {
		t.Fatalf("expected oldest event kept, got seq %d", first.Seq)
	}
}

func TestQueueConsumerTerminalAfterDrain(t *testing.T) {
	q := newQueueConsumer(4)

	q.OnEvent(testEvent(1))
	q.OnEvent(testEvent(2))
	q.OnTerminal(Terminal{SubscriptionID: "sub-1", Reason: ReasonComplete})
	q.OnTerminal(Terminal{SubscriptionID: "sub-1", Reason: ReasonClosed}) // ignored

	for want := uint64(1); want <= 2; want++ {
		ev, ok := <-q.events
		if !ok {
			t.Fatalf("channel closed before event %d drained", want)
		}
		if ev.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, ev.Seq)
		}
	}
	if _, ok := <-q.events; ok {
		t.Fatal("expected closed channel after drain")
	}

	term := <-q.terminal
	if term.Reason != ReasonComplete {
		t.Fatalf("expected the first terminal to win, got %s", term.Reason)
	}
	if len(q.terminal) != 0 {
		t.Fatal("second terminal should have been ignored")
	}
}

func TestQueueConsumerDefaultSize(t *testing.T) {
	q := newQueueConsumer(0)
	if cap(q.events) != defaultQueueSize {
		t.Fatalf("expected default capacity %d, got %d", defaultQueueSize, cap(q.events))
	}
}

func TestOneshotConsumerKeepsFirstEventOnly(t *testing.T) {
	o := newOneshotConsumer()

	o.OnEvent(testEvent(1))
	o.OnEvent(testEvent(2))
	o.OnEvent(testEvent(3))
	o.OnTerminal(Terminal{SubscriptionID: "sub-1", Reason: ReasonComplete})

	sig := <-o.ch
	if sig.event == nil || sig.event.Seq != 1 {
		t.Fatalf("expected first event signal, got %+v", sig)
	}
	sig = <-o.ch
	if sig.term == nil || sig.term.Reason != ReasonComplete {
		t.Fatalf("expected terminal signal, got %+v", sig)
	}
	if len(o.ch) != 0 {
		t.Fatal("later events should not signal")
	}
}
