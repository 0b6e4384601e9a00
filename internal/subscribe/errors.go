package subscribe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClientClosed is returned by operations on a shut-down client.
	ErrClientClosed = errors.New("subscription client closed")

	// ErrDisconnected terminates active subscriptions when the socket is
	// lost unexpectedly. The connection itself keeps retrying.
	ErrDisconnected = errors.New("connection lost")

	// ErrUnavailable is delivered to waiting subscribers once the connect
	// retry budget is exhausted. A new subscribe call restarts the cycle.
	ErrUnavailable = errors.New("subscription service unavailable")

	// ErrHandshakeTimeout means the server never acknowledged the
	// connection_init frame within the configured window.
	ErrHandshakeTimeout = errors.New("handshake timed out waiting for connection_ack")
)

// ConnectError wraps a failure to establish the WebSocket connection
// (DNS, TLS, refused connection, or a non-upgrade HTTP response).
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// HandshakeRejectedError means the server explicitly refused the
// connection_init, usually over bad credentials.
type HandshakeRejectedError struct {
	Code   int
	Reason string
}

func (e *HandshakeRejectedError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("handshake rejected (close %d): %s", e.Code, e.Reason)
	}
	return "handshake rejected: " + e.Reason
}

// SubscriptionError carries the server-reported errors that terminated a
// single subscription. Other subscriptions and the connection are unaffected.
type SubscriptionError struct {
	ID       string
	Messages []string
}

func (e *SubscriptionError) Error() string {
	if len(e.Messages) == 0 {
		return "subscription " + e.ID + " failed"
	}
	return fmt.Sprintf("subscription %s failed: %s", e.ID, strings.Join(e.Messages, "; "))
}

// TerminalReason says why a subscription ended.
type TerminalReason string

const (
	ReasonComplete     TerminalReason = "complete"
	ReasonError        TerminalReason = "error"
	ReasonDisconnected TerminalReason = "disconnected"
	ReasonUnavailable  TerminalReason = "unavailable"
	ReasonClosed       TerminalReason = "closed"
)

// TerminalError is the explicit end marker surfaced by Stream.Next once a
// subscription has ended. Streams never just stop producing.
type TerminalError struct {
	Reason TerminalReason
	Err    error
}

func (e *TerminalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscription ended (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("subscription ended (%s)", e.Reason)
}

func (e *TerminalError) Unwrap() error { return e.Err }
