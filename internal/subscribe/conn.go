package subscribe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nkissick-del/unraid-mcp/internal/metrics"
)

const writeTimeout = 10 * time.Second

// wsConn wraps a gorilla connection with a write lock. Reads happen only
// on the engine's read pump; writes come from the engine loop and from
// teardown paths.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// dialConn opens the WebSocket and negotiates the graphql-transport-ws
// subprotocol. Failures wrap into ConnectError with the HTTP status when
// the server answered but refused the upgrade.
func dialConn(ctx context.Context, endpoint string, header http.Header, insecure bool, timeout time.Duration) (*wsConn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Subprotocols:     []string{Subprotocol},
	}
	if insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %s)", err, resp.Status)
			resp.Body.Close()
		}
		return nil, &ConnectError{URL: endpoint, Err: err}
	}
	return &wsConn{conn: conn}, nil
}

// writeMessage marshals and sends one protocol frame under the write lock.
func (c *wsConn) writeMessage(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", msg.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s frame: %w", msg.Type, err)
	}
	metrics.RecordFrameSent(string(msg.Type))
	return nil
}

// readFrame blocks until the next frame arrives or the read deadline
// passes. Raw bytes come back so the caller can drop undecodable frames
// without treating them as connection failures.
func (c *wsConn) readFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) setReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
