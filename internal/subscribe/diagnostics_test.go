package subscribe

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// runProbe runs TestSubscription on a side goroutine so the test goroutine
// stays free to script the server end.
func runProbe(c *Client, query string, variables map[string]any, timeout time.Duration) <-chan Report {
	out := make(chan Report, 1)
	go func() {
		out <- c.TestSubscription(context.Background(), query, variables, timeout)
	}()
	return out
}

func awaitReport(t *testing.T, ch <-chan Report) Report {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("probe did not return")
		return Report{}
	}
}

func TestProbeReportsFirstEvent(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, testConfig(api.url()))

	reports := runProbe(c, "", nil, 2*time.Second)

	conn := api.acceptAndAck(t)
	sub := conn.await(t, MsgSubscribe)

	var sp subscribePayload
	if err := json.Unmarshal(sub.Payload, &sp); err != nil {
		t.Fatalf("decode subscribe payload: %v", err)
	}
	if !strings.Contains(sp.Query, "logFile") {
		t.Fatalf("expected the default probe query, got %q", sp.Query)
	}
	if sp.Variables["path"] != "/var/log/syslog" {
		t.Fatalf("expected default path variable, got %#v", sp.Variables)
	}

	conn.sendNext(t, sub.ID, `{"logFile":{"path":"/var/log/syslog","totalLines":12}}`)

	report := awaitReport(t, reports)
	if !report.GotEvent {
		t.Fatalf("expected an event, report: %+v", report)
	}
	if !report.HandshakeOK {
		t.Fatal("expected handshake_ok")
	}
	if report.State != "ready" {
		t.Fatalf("expected ready state, got %q", report.State)
	}
	if report.SubscriptionID == "" {
		t.Fatal("expected a subscription id")
	}
	if report.Error != "" || report.TerminalReason != "" {
		t.Fatalf("expected clean report, got %+v", report)
	}

	// The probe unsubscribes on its way out.
	conn.await(t, MsgComplete)
	waitFor(t, 2*time.Second, func() bool {
		h := c.Health()
		return h.ActiveSubscriptions == 0 && h.PendingSubscriptions == 0
	})
}

func TestProbeTimesOutButReportsHandshake(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, testConfig(api.url()))

	reports := runProbe(c, "", nil, 100*time.Millisecond)

	conn := api.acceptAndAck(t)
	conn.await(t, MsgSubscribe)
	// Never send an event.

	report := awaitReport(t, reports)
	if report.GotEvent {
		t.Fatal("expected no event")
	}
	if !strings.Contains(report.Error, "timed out") {
		t.Fatalf("expected timeout error, got %q", report.Error)
	}
	if !report.HandshakeOK {
		t.Fatal("a live connection should still report handshake_ok")
	}

	conn.await(t, MsgComplete)
}

func TestProbeReportsUnavailable(t *testing.T) {
	api := newFakeAPI(t)
	api.setRejectNext(1000)

	cfg := testConfig(api.url())
	cfg.MaxRetries = 1
	c := newTestClient(t, cfg)

	report := c.TestSubscription(context.Background(), "", nil, 2*time.Second)
	if report.GotEvent {
		t.Fatal("expected no event")
	}
	if report.TerminalReason != string(ReasonUnavailable) {
		t.Fatalf("expected unavailable terminal, got %+v", report)
	}
	if report.HandshakeOK {
		t.Fatal("expected handshake_ok false")
	}
	if report.State != "disconnected" {
		t.Fatalf("expected disconnected state, got %q", report.State)
	}
}

func TestProbeForwardsCustomQuery(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, testConfig(api.url()))

	query := "subscription { notificationAdded { id subject } }"
	reports := runProbe(c, query, map[string]any{"level": "warning"}, 2*time.Second)

	conn := api.acceptAndAck(t)
	sub := conn.await(t, MsgSubscribe)

	var sp subscribePayload
	if err := json.Unmarshal(sub.Payload, &sp); err != nil {
		t.Fatalf("decode subscribe payload: %v", err)
	}
	if sp.Query != query {
		t.Fatalf("expected custom query, got %q", sp.Query)
	}
	if sp.Variables["level"] != "warning" {
		t.Fatalf("expected custom variables, got %#v", sp.Variables)
	}

	conn.sendNext(t, sub.ID, `{"notificationAdded":{"id":"n1","subject":"hi"}}`)
	report := awaitReport(t, reports)
	if !report.GotEvent || report.TimeToFirstEventMS < 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
