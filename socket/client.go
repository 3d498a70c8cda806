package socket

import (
	"net/http"
	"sync/atomic"
	"time"

	"satukanvas/pkg/logger"
	"satukanvas/protocol"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second // Must be less than pongWait.
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows the canvas dev server to connect from another port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	SessionID string
	UserID    string
	Send      chan []byte

	// left is set once a Leave went through, so the hub does not forge one.
	left atomic.Bool
}

// ServeWs admits userID into the session named by the sessionId query
// parameter and starts its pumps.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	if hub.access != nil {
		ok, err := hub.access.CanJoin(r.Context(), sessionID, userID)
		if err != nil {
			logger.Sugar.Errorf("Checking access of %s to session %s: %v", userID, sessionID, err)
			http.Error(w, "Could not verify session membership", http.StatusInternalServerError)
			return
		}
		if !ok {
			logger.Sugar.Warnf("Connection rejected: %s is not a member of active session %s", userID, sessionID)
			http.Error(w, "Not a member of this session", http.StatusForbidden)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:       hub,
		Conn:      conn,
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan []byte, sendBuffer),
	}

	select {
	case hub.Register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}

		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			logger.Sugar.Warnf("Dropping frame from %s: %v", c.UserID, err)
			c.reject("decode", err.Error())
			continue
		}

		// Server-authoritative identity: nobody speaks for someone else or
		// into another session.
		env.SenderID = c.UserID
		env.SessionID = c.SessionID
		if env.Kind == protocol.KindLeave {
			c.left.Store(true)
		}

		data, err := env.Encode()
		if err != nil {
			logger.Sugar.Errorf("Error re-encoding frame from %s: %v", c.UserID, err)
			continue
		}

		select {
		case c.Hub.Broadcast <- Frame{SessionID: c.SessionID, From: c, Data: data}:
		case <-c.Hub.done:
			return
		}
	}
}

// reject tells the sender its frame was dropped. The reply goes through the
// hub, which owns c.Send.
func (c *Client) reject(code, reason string) {
	data, err := protocol.Encode(protocol.Message{
		Kind:      protocol.KindError,
		SessionID: c.SessionID,
		Timestamp: protocol.Now(),
		Payload:   protocol.ErrorPayload{Code: code, Message: reason},
	})
	if err != nil {
		return
	}
	select {
	case c.Hub.Broadcast <- Frame{SessionID: c.SessionID, To: c, Data: data}:
	case <-c.Hub.done:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		// Ping every 30 seconds so dead peers are noticed by the read deadline.
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
