package subscribe

import (
	"context"
	"strings"
	"time"
)

// DefaultTestQuery probes the pipeline with a cheap log subscription;
// syslog exists on every Unraid host.
const DefaultTestQuery = `subscription TestLogStream($path: String!) {
  logFile(path: $path) {
    path
    totalLines
  }
}`

const defaultTestLogPath = "/var/log/syslog"

const defaultDiagnosticTimeout = 15 * time.Second

// Report summarizes one end-to-end probe of the subscription pipeline.
type Report struct {
	HandshakeOK        bool   `json:"handshake_ok"`
	State              string `json:"state"`
	SubscriptionID     string `json:"subscription_id,omitempty"`
	GotEvent           bool   `json:"got_event"`
	TimeToFirstEventMS int64  `json:"time_to_first_event_ms,omitempty"`
	TerminalReason     string `json:"terminal_reason,omitempty"`
	Error              string `json:"error,omitempty"`
}

// TestSubscription opens a short-lived subscription, waits up to the
// timeout for the first event or a terminal signal, and unsubscribes on
// every exit path. Failures are reported in the Report, never raised, so
// health checks stay non-throwing.
func (c *Client) TestSubscription(ctx context.Context, query string, variables map[string]any, timeout time.Duration) Report {
	if strings.TrimSpace(query) == "" {
		query = DefaultTestQuery
		if variables == nil {
			variables = map[string]any{"path": defaultTestLogPath}
		}
	}
	if timeout <= 0 {
		timeout = defaultDiagnosticTimeout
	}

	var report Report
	oc := newOneshotConsumer()
	start := time.Now()

	id, err := c.Subscribe(ctx, Subscription{Query: query, Variables: variables, Consumer: oc})
	if err != nil {
		report.State = c.State().String()
		report.Error = err.Error()
		return report
	}
	report.SubscriptionID = id
	defer c.Unsubscribe(id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-oc.ch:
		if sig.event != nil {
			report.GotEvent = true
			report.TimeToFirstEventMS = time.Since(start).Milliseconds()
		} else {
			report.TerminalReason = string(sig.term.Reason)
			if sig.term.Err != nil {
				report.Error = sig.term.Err.Error()
			}
		}
	case <-timer.C:
		report.Error = "timed out waiting for first event"
	case <-ctx.Done():
		report.Error = ctx.Err().Error()
	}

	state := c.State()
	report.State = state.String()
	report.HandshakeOK = report.GotEvent || state == StateReady
	return report
}
