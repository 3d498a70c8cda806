package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"satukanvas/internal/document"
	"satukanvas/internal/events"
	"satukanvas/socket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openSessions struct{}

func (openSessions) CanJoin(context.Context, string, string) (bool, error) { return true, nil }

// startRelay runs a real hub. The token doubles as the user id, standing in
// for the JWT middleware.
func startRelay(t *testing.T) string {
	ctx, cancel := context.WithCancel(context.Background())
	hub := socket.NewHub(openSessions{}, nil)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, r.URL.Query().Get("token"))
	}))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func newWSClient(t *testing.T, url, id string) (*Client, *recorder) {
	c, err := New(Config{
		Identity:  Identity{ID: id, DisplayName: "user " + id},
		SessionID: "s1",
		OwnerID:   "x",
		Transport: &WebSocketTransport{URL: url, Token: id},
	})
	require.NoError(t, err)
	rec := record(c)
	t.Cleanup(c.Disconnect)
	return c, rec
}

func TestOverWebSocketRelay(t *testing.T) {
	url := startRelay(t)

	x, xrec := newWSClient(t, url, "x")
	connect(t, x)
	require.NoError(t, x.AddObject(document.Object{ID: "o1", Attrs: map[string]any{"x": 1.0}}))

	y, yrec := newWSClient(t, url, "y")
	connect(t, y)

	waitFor[events.SyncCompleted](t, yrec, func(e events.SyncCompleted) bool { return e.SourceID == "x" })
	assert.Equal(t, x.Document().ExportSnapshot(), y.Document().ExportSnapshot())
	waitFor[events.CollaboratorJoined](t, xrec, func(e events.CollaboratorJoined) bool { return e.ID == "y" })

	require.NoError(t, y.UpdateObject("o1", map[string]any{"x": 7.0}))
	require.Eventually(t, func() bool {
		obj, ok := x.Document().(*document.Canvas).Object("o1")
		return ok && obj.Attrs["x"] == 7.0
	}, 2*time.Second, 5*time.Millisecond)

	_, err := y.SendChat("hi x")
	require.NoError(t, err)
	chat := waitFor[events.ChatReceived](t, xrec, nil)
	assert.Equal(t, "y", chat.SenderID)
	assert.Equal(t, "hi x", chat.Content)

	y.Disconnect()
	left := waitFor[events.CollaboratorLeft](t, xrec, func(e events.CollaboratorLeft) bool { return e.ID == "y" })
	assert.Equal(t, events.ReasonLeft, left.Reason)
}

func TestAbruptDropIsSeenAsLeave(t *testing.T) {
	url := startRelay(t)

	x, xrec := newWSClient(t, url, "x")
	connect(t, x)
	y, _ := newWSClient(t, url, "y")
	connect(t, y)
	waitFor[events.CollaboratorJoined](t, xrec, func(e events.CollaboratorJoined) bool { return e.ID == "y" })

	// Drop the socket without a Leave.
	y.mu.Lock()
	y.conn.(*wsConn).ws.Close()
	y.mu.Unlock()

	waitFor[events.CollaboratorLeft](t, xrec, func(e events.CollaboratorLeft) bool { return e.ID == "y" })
}
