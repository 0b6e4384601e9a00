package subscribe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// StreamOption adjusts how OpenStream sets up its subscription.
type StreamOption func(*streamOptions)

type streamOptions struct {
	queueSize   int
	resubscribe bool
}

// WithQueueSize overrides the per-stream event buffer size.
func WithQueueSize(n int) StreamOption {
	return func(o *streamOptions) { o.queueSize = n }
}

// WithResubscribe overrides the client-wide resubscribe default for one
// stream.
func WithResubscribe(v bool) StreamOption {
	return func(o *streamOptions) { o.resubscribe = v }
}

// Stream is a lazy sequence of events from one subscription. Events are
// produced by Next until a terminal signal, which surfaces as a
// *TerminalError rather than a silent stop.
type Stream struct {
	id        string
	client    *Client
	q         *queueConsumer
	closeOnce sync.Once
	closed    atomic.Bool

	mu   sync.Mutex
	term *TerminalError
}

// OpenStream subscribes and returns a handle that yields events as they
// arrive. The caller must Close it when done.
func (c *Client) OpenStream(ctx context.Context, query string, variables map[string]any, opts ...StreamOption) (*Stream, error) {
	o := streamOptions{
		queueSize:   c.cfg.QueueSize,
		resubscribe: c.cfg.Resubscribe,
	}
	for _, opt := range opts {
		opt(&o)
	}

	q := newQueueConsumer(o.queueSize)
	id, err := c.Subscribe(ctx, Subscription{
		Query:       query,
		Variables:   variables,
		Consumer:    q,
		Resubscribe: o.resubscribe,
	})
	if err != nil {
		return nil, err
	}
	return &Stream{id: id, client: c, q: q}, nil
}

// ID returns the subscription id backing this stream.
func (s *Stream) ID() string { return s.id }

// Dropped reports how many events were discarded because the stream's
// buffer was full.
func (s *Stream) Dropped() uint64 { return s.q.dropped.Load() }

// Next blocks until the next event, context cancellation, or the end of
// the stream. Buffered events drain out before the terminal; once the
// stream has ended every call returns the same *TerminalError.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	s.mu.Lock()
	term := s.term
	s.mu.Unlock()
	if term != nil {
		return Event{}, term
	}
	if s.closed.Load() {
		return Event{}, &TerminalError{Reason: ReasonClosed}
	}

	select {
	case ev, ok := <-s.q.events:
		if !ok {
			return Event{}, s.terminal()
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-s.client.done:
		return Event{}, &TerminalError{Reason: ReasonClosed, Err: ErrClientClosed}
	}
}

// terminal caches the parked terminal signal. The engine always sends it
// before closing the event channel, so this receive cannot block.
func (s *Stream) terminal() *TerminalError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.term == nil {
		t := <-s.q.terminal
		s.term = &TerminalError{Reason: t.Reason, Err: t.Err}
	}
	return s.term
}

// Close unsubscribes and ends the stream. Safe to call multiple times and
// concurrently with Next.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.client.Unsubscribe(s.id)
	})
}

// logStreamQuery matches the Unraid API logFile subscription shape.
const logStreamQuery = `subscription StreamLogFile($path: String!) {
  logFile(path: $path) {
    path
    content
    totalLines
  }
}`

// LogChunk is one decoded log-stream payload.
type LogChunk struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	TotalLines int    `json:"totalLines"`
}

// LogStream tails one log file over the subscription connection.
type LogStream struct {
	*Stream
	path string
}

// OpenLogStream starts tailing the named log file. Close the stream to
// stop; reopening the same path starts a fresh subscription.
func (c *Client) OpenLogStream(ctx context.Context, path string, opts ...StreamOption) (*LogStream, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("log path must not be empty")
	}
	s, err := c.OpenStream(ctx, logStreamQuery, map[string]any{"path": path}, opts...)
	if err != nil {
		return nil, err
	}
	return &LogStream{Stream: s, path: path}, nil
}

// Path returns the log file this stream tails.
func (l *LogStream) Path() string { return l.path }

// NextChunk decodes the next logFile event, skipping empty keep-alive
// payloads.
func (l *LogStream) NextChunk(ctx context.Context) (LogChunk, error) {
	for {
		ev, err := l.Next(ctx)
		if err != nil {
			return LogChunk{}, err
		}
		if len(ev.Data) == 0 || string(ev.Data) == "null" {
			continue
		}
		var payload struct {
			LogFile LogChunk `json:"logFile"`
		}
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return LogChunk{}, fmt.Errorf("decode log event: %w", err)
		}
		return payload.LogFile, nil
	}
}
