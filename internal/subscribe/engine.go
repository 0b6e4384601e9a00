// Package subscribe maintains the persistent GraphQL subscription
// connection to the Unraid API. One engine goroutine owns the WebSocket,
// the protocol handshake, and the subscription registry; callers interact
// with it through Subscribe/Unsubscribe and per-consumer delivery queues.
package subscribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nkissick-del/unraid-mcp/internal/metrics"
)

const (
	defaultDialTimeout      = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultKeepAlive        = 30 * time.Second
	defaultPongWait         = 70 * time.Second // just over two keep-alive intervals
	cmdBuffer               = 16
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config carries the immutable connection settings. Zero values fall back
// to the defaults above; MaxRetries zero means retry forever.
type Config struct {
	// Endpoint is the ws:// or wss:// URL of the GraphQL endpoint.
	Endpoint string
	// APIKey authenticates both the upgrade request and the
	// connection_init payload.
	APIKey      string
	InsecureTLS bool

	DialTimeout time.Duration
	// HandshakeTimeout bounds the wait for connection_ack after
	// connection_init is sent.
	HandshakeTimeout time.Duration
	// KeepAlive is the outbound ping cadence while Ready. PongWait is the
	// read deadline; the connection degrades when no frame at all arrives
	// within it, i.e. after roughly PongWait/KeepAlive missed intervals.
	KeepAlive time.Duration
	PongWait  time.Duration

	// MaxRetries caps consecutive failed connection attempts. Exceeding it
	// fails all registered subscriptions and parks the engine until the
	// next Subscribe call.
	MaxRetries int
	Backoff    BackoffConfig

	// QueueSize is the per-stream event buffer used by OpenStream.
	QueueSize int
	// Resubscribe makes streams re-announce across reconnects by default.
	Resubscribe bool
}

// Health is a point-in-time snapshot of the engine.
type Health struct {
	State                State
	Generation           uint64
	PendingSubscriptions int
	ActiveSubscriptions  int
	ConsecutiveFailures  int
	ConnectedAt          time.Time
	LastError            string
}

// Subscription describes one logical GraphQL subscription.
type Subscription struct {
	Query     string
	Variables map[string]any
	Consumer  Consumer
	// Resubscribe re-announces this subscription after a reconnect instead
	// of terminating it with a disconnected signal. The sequence counter
	// continues across generations.
	Resubscribe bool
}

type subscribeCmd struct{ e *entry }

type unsubscribeCmd struct{ id string }

// Client multiplexes GraphQL subscriptions over one WebSocket connection.
// The connection is established lazily on the first Subscribe and then
// maintained with backoff until Close.
type Client struct {
	cfg    Config
	logger *zap.Logger

	cmds chan any
	reg  *registry // engine goroutine only

	start   sync.Once
	started atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	stopped chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc

	mu     sync.Mutex
	health Health
}

// New creates a client. No connection is opened until the first Subscribe.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:       cfg,
		logger:    logger.Named("subscribe"),
		cmds:      make(chan any, cmdBuffer),
		reg:       newRegistry(),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		runCtx:    ctx,
		runCancel: cancel,
	}
}

// Subscribe registers a subscription and returns its id. The entry starts
// pending and is announced on the wire once the connection is Ready; the
// consumer then receives events until a terminal signal.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) (string, error) {
	if strings.TrimSpace(sub.Query) == "" {
		return "", fmt.Errorf("subscription query must not be empty")
	}
	if sub.Consumer == nil {
		return "", fmt.Errorf("subscription consumer must not be nil")
	}
	if c.closed.Load() {
		return "", ErrClientClosed
	}
	c.ensureStarted()

	e := &entry{
		id:          uuid.New().String(),
		query:       sub.Query,
		variables:   sub.Variables,
		consumer:    sub.Consumer,
		resubscribe: sub.Resubscribe,
		state:       entryPending,
		createdAt:   time.Now(),
	}
	select {
	case c.cmds <- subscribeCmd{e: e}:
		return e.id, nil
	case <-c.done:
		return "", ErrClientClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Unsubscribe removes a subscription, sending a complete frame if it is
// active. Unknown ids and repeat calls are no-ops.
func (c *Client) Unsubscribe(id string) {
	if id == "" {
		return
	}
	select {
	case c.cmds <- unsubscribeCmd{id: id}:
	case <-c.done:
	}
}

// Health returns a snapshot of the connection and registry.
func (c *Client) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// State returns the current connection state.
func (c *Client) State() State { return c.Health().State }

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close shuts the engine down, terminating every registered subscription
// with a closed signal. It is idempotent and returns after the engine
// goroutine has finished cleanup.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.runCancel()
	close(c.done)
	if c.started.Load() {
		<-c.stopped
	}
	return nil
}

func (c *Client) ensureStarted() {
	c.start.Do(func() {
		c.started.Store(true)
		go c.run()
	})
}

// run is the engine goroutine. It owns the socket, the registry, and all
// state transitions; everything else talks to it over cmds.
func (c *Client) run() {
	defer close(c.stopped)

	bo := newBackoff(c.cfg.Backoff)
	c.logger.Info("subscription engine started", zap.String("endpoint", c.cfg.Endpoint))

	for {
		select {
		case <-c.done:
			c.shutdown()
			return
		default:
		}

		sess, err := c.attempt()
		if err != nil {
			if errors.Is(err, ErrClientClosed) {
				continue
			}
			delay := bo.Next()
			c.noteFailure(bo.Attempts(), err)
			if c.cfg.MaxRetries > 0 && bo.Attempts() >= c.cfg.MaxRetries {
				c.logger.Error("connection retries exhausted",
					zap.Int("attempts", bo.Attempts()),
					zap.Error(err),
				)
				c.failAll()
				c.setState(StateDisconnected)
				bo.Reset()
				if !c.park() {
					c.shutdown()
					return
				}
				continue
			}
			c.logger.Warn("connection failed, retrying",
				zap.Error(err),
				zap.Duration("backoff", delay),
				zap.Int("attempt", bo.Attempts()),
			)
			if !c.sleep(delay) {
				c.shutdown()
				return
			}
			continue
		}

		bo.Reset()
		c.setReady()
		err = c.serve(sess)

		select {
		case <-c.done:
			continue // loop top runs shutdown
		default:
		}

		c.logger.Warn("connection lost", zap.Error(err))
		c.setState(StateDegraded)
		requeued, dropped := c.reg.invalidate()
		for _, e := range dropped {
			e.consumer.OnTerminal(Terminal{
				SubscriptionID: e.id,
				Reason:         ReasonDisconnected,
				Err:            ErrDisconnected,
			})
		}
		if len(requeued) > 0 {
			c.logger.Info("queued subscriptions for resubscribe", zap.Int("count", len(requeued)))
		}
		c.syncGauges()
	}
}

// session bundles one connection with its read pump.
type session struct {
	conn   *wsConn
	frames chan readResult
	stop   chan struct{}
}

func (s *session) teardown() {
	close(s.stop)
	s.conn.close()
}

type readResult struct {
	data []byte
	err  error
}

// readPump is the only reader of the socket. It refreshes the read
// deadline before every read, so any inbound frame counts as liveness.
func (c *Client) readPump(conn *wsConn, frames chan<- readResult, stop <-chan struct{}) {
	for {
		_ = conn.setReadDeadline(time.Now().Add(c.cfg.PongWait))
		data, err := conn.readFrame()
		if err != nil {
			select {
			case frames <- readResult{err: err}:
			case <-stop:
			}
			return
		}
		select {
		case frames <- readResult{data: data}:
		case <-stop:
			return
		}
	}
}

// attempt dials the endpoint and performs the connection_init handshake.
// Every failure path tears the session down before returning.
func (c *Client) attempt() (*session, error) {
	c.setState(StateConnecting)
	start := time.Now()

	header := http.Header{}
	header.Set("x-api-key", c.cfg.APIKey)

	conn, err := dialConn(c.runCtx, c.cfg.Endpoint, header, c.cfg.InsecureTLS, c.cfg.DialTimeout)
	if err != nil {
		if c.runCtx.Err() != nil {
			return nil, ErrClientClosed
		}
		metrics.RecordConnectFailure("dial")
		return nil, err
	}

	c.setState(StateHandshaking)
	sess := &session{
		conn:   conn,
		frames: make(chan readResult, 8),
		stop:   make(chan struct{}),
	}
	go c.readPump(conn, sess.frames, sess.stop)

	init, err := newMessage("", MsgConnectionInit, map[string]string{"x-api-key": c.cfg.APIKey})
	if err == nil {
		err = conn.writeMessage(init)
	}
	if err != nil {
		sess.teardown()
		metrics.RecordConnectFailure("handshake")
		return nil, fmt.Errorf("connection_init: %w", err)
	}

	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	for {
		select {
		case <-c.done:
			sess.teardown()
			return nil, ErrClientClosed
		case <-timer.C:
			sess.teardown()
			metrics.RecordConnectFailure("handshake")
			return nil, ErrHandshakeTimeout
		case res := <-sess.frames:
			if res.err != nil {
				sess.teardown()
				metrics.RecordConnectFailure("handshake")
				var closeErr *websocket.CloseError
				if errors.As(res.err, &closeErr) {
					return nil, &HandshakeRejectedError{Code: closeErr.Code, Reason: closeErr.Text}
				}
				return nil, fmt.Errorf("handshake read: %w", res.err)
			}
			var msg Message
			if err := json.Unmarshal(res.data, &msg); err != nil {
				c.logger.Warn("dropping malformed handshake frame", zap.Error(err))
				metrics.MalformedFramesTotal.Inc()
				continue
			}
			metrics.RecordFrameReceived(string(msg.Type))
			switch msg.Type {
			case MsgConnectionAck:
				metrics.RecordConnect(time.Since(start))
				return sess, nil
			case MsgPing:
				if err := conn.writeMessage(Message{Type: MsgPong, Payload: msg.Payload}); err != nil {
					sess.teardown()
					metrics.RecordConnectFailure("handshake")
					return nil, fmt.Errorf("pong during handshake: %w", err)
				}
			default:
				c.logger.Warn("unexpected frame before connection_ack", zap.String("type", string(msg.Type)))
			}
		}
	}
}

// serve runs the Ready phase: it flushes queued subscriptions, then
// multiplexes commands, inbound frames, and keep-alive pings until the
// socket fails or the client closes.
func (c *Client) serve(sess *session) error {
	defer sess.teardown()

	if err := c.flushPending(sess.conn); err != nil {
		return err
	}

	keepalive := time.NewTicker(c.cfg.KeepAlive)
	defer keepalive.Stop()

	for {
		select {
		case <-c.done:
			return nil
		case cmd := <-c.cmds:
			if err := c.handleOnline(sess.conn, cmd); err != nil {
				return err
			}
		case res := <-sess.frames:
			if res.err != nil {
				return fmt.Errorf("read: %w", res.err)
			}
			c.dispatch(sess.conn, res.data)
		case <-keepalive.C:
			if err := sess.conn.writeMessage(Message{Type: MsgPing}); err != nil {
				return fmt.Errorf("keepalive: %w", err)
			}
		}
	}
}

// flushPending announces queued subscriptions oldest-first.
func (c *Client) flushPending(conn *wsConn) error {
	for _, e := range c.reg.pending() {
		if err := c.sendSubscribe(conn, e); err != nil {
			return err
		}
	}
	c.syncGauges()
	return nil
}

// sendSubscribe writes the subscribe frame and marks the entry active. A
// payload that cannot be encoded fails only that entry; a write failure
// fails the connection and leaves the entry pending for the next flush.
func (c *Client) sendSubscribe(conn *wsConn, e *entry) error {
	msg, err := newMessage(e.id, MsgSubscribe, subscribePayload{Query: e.query, Variables: e.variables})
	if err != nil {
		c.reg.remove(e.id)
		e.consumer.OnTerminal(Terminal{
			SubscriptionID: e.id,
			Reason:         ReasonError,
			Err:            err,
		})
		return nil
	}
	if err := conn.writeMessage(msg); err != nil {
		return err
	}
	e.state = entryActive
	return nil
}

func (c *Client) handleOnline(conn *wsConn, cmd any) error {
	switch cmd := cmd.(type) {
	case subscribeCmd:
		c.reg.add(cmd.e)
		if err := c.sendSubscribe(conn, cmd.e); err != nil {
			return err
		}
		c.syncGauges()
	case unsubscribeCmd:
		ent, ok := c.reg.remove(cmd.id)
		if !ok {
			return nil
		}
		var writeErr error
		if ent.state == entryActive {
			writeErr = conn.writeMessage(Message{ID: ent.id, Type: MsgComplete})
		}
		ent.consumer.OnTerminal(Terminal{SubscriptionID: ent.id, Reason: ReasonClosed})
		c.syncGauges()
		if writeErr != nil {
			return fmt.Errorf("complete frame: %w", writeErr)
		}
	}
	return nil
}

// handleOffline applies commands while no connection is up: subscriptions
// queue as pending, unsubscribes terminate immediately.
func (c *Client) handleOffline(cmd any) {
	switch cmd := cmd.(type) {
	case subscribeCmd:
		c.reg.add(cmd.e)
		c.syncGauges()
	case unsubscribeCmd:
		ent, ok := c.reg.remove(cmd.id)
		if !ok {
			return
		}
		ent.consumer.OnTerminal(Terminal{SubscriptionID: ent.id, Reason: ReasonClosed})
		c.syncGauges()
	}
}

// dispatch decodes one inbound frame and routes it. Malformed frames are
// logged and dropped; they never fail the connection or other
// subscriptions.
func (c *Client) dispatch(conn *wsConn, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("dropping malformed frame", zap.Error(err))
		metrics.MalformedFramesTotal.Inc()
		return
	}
	metrics.RecordFrameReceived(string(msg.Type))

	switch msg.Type {
	case MsgNext:
		c.handleNext(msg)
	case MsgError:
		c.handleError(msg)
	case MsgComplete:
		c.handleComplete(msg)
	case MsgPing:
		if err := conn.writeMessage(Message{Type: MsgPong, Payload: msg.Payload}); err != nil {
			c.logger.Warn("pong reply failed", zap.Error(err))
		}
	case MsgPong, MsgConnectionAck:
		// Liveness only; the read deadline was already refreshed.
	default:
		c.logger.Warn("dropping frame with unknown type", zap.String("type", string(msg.Type)))
		metrics.MalformedFramesTotal.Inc()
	}
}

func (c *Client) handleNext(msg Message) {
	ent, ok := c.reg.get(msg.ID)
	if !ok {
		// Races with a just-completed unsubscribe; not an error.
		c.logger.Debug("event for unknown subscription", zap.String("id", msg.ID))
		return
	}
	var res executionResult
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		c.logger.Warn("dropping undecodable next payload",
			zap.String("id", msg.ID),
			zap.Error(err),
		)
		metrics.MalformedFramesTotal.Inc()
		return
	}
	ent.consumer.OnEvent(Event{
		SubscriptionID: ent.id,
		Seq:            ent.nextSeq(),
		Data:           res.Data,
		ReceivedAt:     time.Now(),
	})
	metrics.EventsDeliveredTotal.Inc()
}

func (c *Client) handleError(msg Message) {
	ent, ok := c.reg.remove(msg.ID)
	if !ok {
		return
	}
	var errs []gqlError
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &errs); err != nil {
			c.logger.Warn("undecodable error payload", zap.String("id", msg.ID), zap.Error(err))
		}
	}
	subErr := &SubscriptionError{ID: msg.ID, Messages: errMessages(errs)}
	c.logger.Warn("subscription failed", zap.String("id", msg.ID), zap.Error(subErr))
	ent.consumer.OnTerminal(Terminal{SubscriptionID: ent.id, Reason: ReasonError, Err: subErr})
	metrics.SubscriptionErrorsTotal.Inc()
	c.syncGauges()
}

func (c *Client) handleComplete(msg Message) {
	ent, ok := c.reg.remove(msg.ID)
	if !ok {
		return
	}
	ent.consumer.OnTerminal(Terminal{SubscriptionID: ent.id, Reason: ReasonComplete})
	c.syncGauges()
}

// sleep waits out a backoff delay while still applying commands, so
// subscriptions issued during an outage queue instead of blocking.
// Returns false when the client is shutting down.
func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-c.done:
			return false
		case cmd := <-c.cmds:
			c.handleOffline(cmd)
		case <-timer.C:
			return true
		}
	}
}

// park idles after retry exhaustion until a new subscription restarts the
// connect cycle. Returns false when the client is shutting down.
func (c *Client) park() bool {
	for {
		select {
		case <-c.done:
			return false
		case cmd := <-c.cmds:
			c.handleOffline(cmd)
			if c.reg.len() > 0 {
				return true
			}
		}
	}
}

// failAll terminates every registered subscription after retry
// exhaustion.
func (c *Client) failAll() {
	for _, e := range c.reg.drainAll() {
		e.consumer.OnTerminal(Terminal{
			SubscriptionID: e.id,
			Reason:         ReasonUnavailable,
			Err:            ErrUnavailable,
		})
	}
	c.syncGauges()
}

// shutdown drains the registry and any queued commands so every consumer
// observes a terminal signal before Close returns.
func (c *Client) shutdown() {
	for _, e := range c.reg.drainAll() {
		e.consumer.OnTerminal(Terminal{
			SubscriptionID: e.id,
			Reason:         ReasonClosed,
			Err:            ErrClientClosed,
		})
	}
	for {
		select {
		case cmd := <-c.cmds:
			if sc, ok := cmd.(subscribeCmd); ok {
				sc.e.consumer.OnTerminal(Terminal{
					SubscriptionID: sc.e.id,
					Reason:         ReasonClosed,
					Err:            ErrClientClosed,
				})
			}
		default:
			c.setState(StateDisconnected)
			c.syncGauges()
			c.logger.Info("subscription engine stopped")
			return
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.health.State = s
	if s != StateReady {
		c.health.ConnectedAt = time.Time{}
	}
	c.mu.Unlock()
	metrics.ConnectionState.Set(float64(s))
}

func (c *Client) setReady() {
	c.mu.Lock()
	c.health.State = StateReady
	c.health.Generation++
	c.health.ConnectedAt = time.Now()
	c.health.ConsecutiveFailures = 0
	c.health.LastError = ""
	gen := c.health.Generation
	c.mu.Unlock()
	metrics.ConnectionState.Set(float64(StateReady))
	c.logger.Info("connection ready", zap.Uint64("generation", gen))
}

func (c *Client) noteFailure(attempts int, err error) {
	c.mu.Lock()
	c.health.ConsecutiveFailures = attempts
	c.health.LastError = err.Error()
	c.mu.Unlock()
}

func (c *Client) syncGauges() {
	pending, active := c.reg.counts()
	c.mu.Lock()
	c.health.PendingSubscriptions = pending
	c.health.ActiveSubscriptions = active
	c.mu.Unlock()
	metrics.ActiveSubscriptions.Set(float64(pending + active))
}
