package socket

import (
	"context"
	"sync"
	"time"

	"satukanvas/pkg/logger"
	"satukanvas/protocol"

	"github.com/google/uuid"
)

const (
	publishBuffer  = 256
	publishTimeout = 2 * time.Second
)

// Authorizer decides whether a user may open a channel into a session.
type Authorizer interface {
	CanJoin(ctx context.Context, sessionID, userID string) (bool, error)
}

// Frame is one inbound message on its way to the rest of a room.
type Frame struct {
	SessionID string
	From      *Client // nil for frames arriving from another node
	To        *Client // set for a reply meant for one connection only
	Data      []byte
}

// Hub relays frames between the connections of each session. It does not
// interpret payloads: ownership, sync and conflict handling live in the
// clients.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan Frame
	Register   chan *Client
	Unregister chan *Client

	// OnRoomEmpty runs (in its own goroutine) when the last connection of a
	// session goes away.
	OnRoomEmpty func(sessionID string)

	nodeID string
	access Authorizer
	relay  Relay
	// outbound queues frames for the relay so a slow broker never stalls Run.
	outbound chan RelayFrame
	done     chan struct{}
	mu       sync.Mutex
}

func NewHub(access Authorizer, relay Relay) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan Frame),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		nodeID:     uuid.NewString(),
		access:     access,
		relay:      relay,
		outbound:   make(chan RelayFrame, publishBuffer),
		done:       make(chan struct{}),
	}
}

// SetAuthorizer installs the admission check. It must be called before Run.
func (h *Hub) SetAuthorizer(a Authorizer) { h.access = a }

// Run is the hub's event loop. It returns when ctx is done, after closing
// every connection.
func (h *Hub) Run(ctx context.Context) {
	remote := make(chan Frame, 256)
	if h.relay != nil {
		go h.subscribe(ctx, remote)
		go h.publish(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.SessionID] == nil {
				h.Rooms[client.SessionID] = make(map[*Client]bool)
			}
			h.Rooms[client.SessionID][client] = true
			size := len(h.Rooms[client.SessionID])
			h.mu.Unlock()
			logger.Sugar.Infof("%s joined session %s (%d connected)", client.UserID, client.SessionID, size)

		case client := <-h.Unregister:
			h.remove(client)

		case frame := <-h.Broadcast:
			h.deliver(frame)
			if frame.To == nil {
				h.forward(frame.SessionID, frame.Data)
			}

		case frame := <-remote:
			h.deliver(frame)
		}
	}
}

// deliver fans frame out to every connection in its room except the one it
// came from, or only to frame.To when set. Each peer has its own queue; a
// peer whose queue is full is dropped instead of holding up the others.
func (h *Hub) deliver(frame Frame) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.Rooms[frame.SessionID]))
	for client := range h.Rooms[frame.SessionID] {
		if frame.To != nil && client != frame.To {
			continue
		}
		if client != frame.From {
			targets = append(targets, client)
		}
	}
	h.mu.Unlock()

	var lagging []*Client
	for _, client := range targets {
		select {
		case client.Send <- frame.Data:
		default:
			logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.UserID)
			lagging = append(lagging, client)
		}
	}
	for _, client := range lagging {
		h.remove(client)
		client.Conn.Close()
	}
}

// remove takes client out of its room. Peers get a Leave on its behalf when
// the connection ended without one, so no roster keeps a ghost.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	room, ok := h.Rooms[client.SessionID]
	if !ok || !room[client] {
		h.mu.Unlock()
		return
	}
	delete(room, client)
	close(client.Send)
	empty := len(room) == 0
	if empty {
		delete(h.Rooms, client.SessionID)
	}
	h.mu.Unlock()

	logger.Sugar.Infof("%s left session %s", client.UserID, client.SessionID)
	if !client.left.Load() && !h.userStillPresent(client) {
		if data, err := leaveFrame(client); err == nil {
			h.deliver(Frame{SessionID: client.SessionID, From: client, Data: data})
			h.forward(client.SessionID, data)
		}
	}
	if empty {
		logger.Sugar.Infof("Closed and cleaned up empty session room: %s", client.SessionID)
		if h.OnRoomEmpty != nil {
			go h.OnRoomEmpty(client.SessionID)
		}
	}
}

// userStillPresent reports whether the same user has another live connection
// (a second tab) in the room.
func (h *Hub) userStillPresent(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for other := range h.Rooms[client.SessionID] {
		if other.UserID == client.UserID {
			return true
		}
	}
	return false
}

func leaveFrame(client *Client) ([]byte, error) {
	return protocol.Encode(protocol.Message{
		Kind:      protocol.KindLeave,
		SenderID:  client.UserID,
		SessionID: client.SessionID,
		Timestamp: protocol.Now(),
		Payload:   protocol.LeavePayload{},
	})
}

// CloseSession disconnects everyone in a session. It is called when the owner
// ends the session through the API.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Closing the socket makes readPump exit and unregister the client.
	for client := range h.Rooms[sessionID] {
		client.left.Store(true)
		client.Conn.Close()
	}
}

// Connected returns the number of live connections in a session.
func (h *Hub) Connected(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[sessionID])
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.Rooms {
		for client := range room {
			client.Conn.Close()
		}
	}
}

// forward queues data for the other nodes. When the queue is full the frame
// is dropped for them; clients recover through a resync.
func (h *Hub) forward(sessionID string, data []byte) {
	if h.relay == nil {
		return
	}
	select {
	case h.outbound <- RelayFrame{Origin: h.nodeID, SessionID: sessionID, Data: data}:
	default:
		logger.Sugar.Warnf("Relay queue full, dropping frame for session %s", sessionID)
	}
}

// publish drains the outbound queue until ctx is done.
func (h *Hub) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-h.outbound:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := h.relay.Publish(pctx, f); err != nil {
				logger.Sugar.Errorf("Relay publish for session %s failed: %v", f.SessionID, err)
			}
			cancel()
		}
	}
}

func (h *Hub) subscribe(ctx context.Context, remote chan<- Frame) {
	err := h.relay.Subscribe(ctx, func(f RelayFrame) {
		if f.Origin == h.nodeID {
			return
		}
		select {
		case remote <- Frame{SessionID: f.SessionID, Data: f.Data}:
		case <-ctx.Done():
		}
	})
	if err != nil && ctx.Err() == nil {
		logger.Sugar.Errorf("Relay subscription ended: %v", err)
	}
}
