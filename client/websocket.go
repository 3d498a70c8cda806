package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// The relay pings every 30s; give it twice that before declaring the channel dead.
	pongWait = 60 * time.Second
	// Inbound frames larger than this close the channel.
	maxMessageSize = 1 << 20
)

// WebSocketTransport dials the relay server's /ws endpoint.
type WebSocketTransport struct {
	// URL is the endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// Token is sent as the token query parameter; browsers cannot set headers
	// on websocket upgrades, so the server accepts it there.
	Token  string
	Header http.Header
	Dialer *websocket.Dialer
}

func (t *WebSocketTransport) Dial(ctx context.Context, sessionID string) (Conn, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("sessionId", sessionID)
	if t.Token != "" {
		q.Set("token", t.Token)
	}
	u.RawQuery = q.Encode()

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), t.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return newWSConn(ws), nil
}

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{ws: ws}
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return c
}

func (c *wsConn) Send(data []byte) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

func (c *wsConn) Receive() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			c.closed.Store(true)
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Ready() bool { return !c.closed.Load() }

func (c *wsConn) Close() error {
	if c.closed.Swap(true) {
		return c.ws.Close()
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.ws.Close()
}
