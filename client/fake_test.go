package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"satukanvas/config"
	"satukanvas/internal/events"
	"satukanvas/protocol"

	"github.com/stretchr/testify/require"
)

// fakeRelay connects fake conns in memory, the way the hub connects sockets.
type fakeRelay struct {
	mu    sync.Mutex
	conns map[*fakeConn]bool
	// echo reflects every frame back to its sender as well.
	echo bool
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{conns: make(map[*fakeConn]bool)}
}

func (r *fakeRelay) add(c *fakeConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = true
}

func (r *fakeRelay) remove(c *fakeConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

func (r *fakeRelay) broadcast(from *fakeConn, data []byte) {
	r.mu.Lock()
	targets := make([]*fakeConn, 0, len(r.conns))
	for c := range r.conns {
		if c != from || r.echo {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()
	for _, c := range targets {
		c.deliver(data)
	}
}

type fakeTransport struct {
	relay *fakeRelay

	mu sync.Mutex
	// gate, when set, holds Dial until it is closed.
	gate chan struct{}
	// ignoreCtx makes a gated Dial ignore cancellation, like a slow handshake.
	ignoreCtx bool
	dialErr   error
	dials     int
	conns     []*fakeConn
}

func (t *fakeTransport) Dial(ctx context.Context, sessionID string) (Conn, error) {
	t.mu.Lock()
	t.dials++
	gate, ignoreCtx, dialErr := t.gate, t.ignoreCtx, t.dialErr
	t.mu.Unlock()

	if gate != nil {
		if ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	c := &fakeConn{relay: t.relay, inbox: make(chan []byte, 256), done: make(chan struct{})}
	t.relay.add(c)
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) hold() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gate = make(chan struct{})
}

func (t *fakeTransport) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	close(t.gate)
	t.gate = nil
}

func (t *fakeTransport) setDialErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialErr = err
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) connCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// last returns the most recently opened conn.
func (t *fakeTransport) last(tb testing.TB) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	require.NotEmpty(tb, t.conns, "no connection was opened")
	return t.conns[len(t.conns)-1]
}

type fakeConn struct {
	relay *fakeRelay
	inbox chan []byte

	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	notReady bool
	sendErr  error

	once sync.Once
	done chan struct{}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("fake: send on closed conn")
	}
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	c.mu.Unlock()

	c.relay.broadcast(c, data)
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}
	return !c.closed && !c.notReady
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.kill()
	return nil
}

// kill ends the channel from the far side.
func (c *fakeConn) kill() {
	c.once.Do(func() { close(c.done) })
	c.relay.remove(c)
}

func (c *fakeConn) deliver(data []byte) {
	select {
	case c.inbox <- data:
	case <-c.done:
	}
}

// inject delivers a frame to this conn only, as if a peer had sent it.
func (c *fakeConn) inject(tb testing.TB, m protocol.Message) {
	data, err := protocol.Encode(m)
	require.NoError(tb, err)
	c.deliver(data)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) setNotReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notReady = true
}

func (c *fakeConn) setSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeConn) sentKinds() []protocol.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]protocol.Kind, 0, len(c.sent))
	for _, data := range c.sent {
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		kinds = append(kinds, env.Kind)
	}
	return kinds
}

// recorder keeps every event published on a client's bus.
type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func record(c *Client) *recorder {
	r := &recorder{}
	c.Events().Subscribe(func(e events.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.evs = append(r.evs, e)
	})
	return r
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

func eventsOf[T events.Event](r *recorder) []T {
	var out []T
	for _, e := range r.all() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// waitFor blocks until an event of type T matching match was recorded.
func waitFor[T events.Event](t *testing.T, r *recorder, match func(T) bool) T {
	t.Helper()
	var found T
	require.Eventually(t, func() bool {
		for _, e := range eventsOf[T](r) {
			if match == nil || match(e) {
				found = e
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

type option func(*Config)

func withTiming(p config.Protocol) option { return func(c *Config) { c.Timing = p } }

func withConfig(f func(*Config)) option { return f }

// newTestClient builds a client for id in session s1 whose owner is ownerID.
func newTestClient(t *testing.T, relay *fakeRelay, id, ownerID string, opts ...option) (*Client, *fakeTransport, *recorder) {
	t.Helper()
	tr := &fakeTransport{relay: relay}
	cfg := Config{
		Identity:   Identity{ID: id, DisplayName: "user " + id, Color: "#" + id},
		SessionID:  "s1",
		DocumentID: "doc-1",
		OwnerID:    ownerID,
		Transport:  tr,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	rec := record(c)
	t.Cleanup(c.Disconnect)
	return c, tr, rec
}

func connect(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.ConnectWait(ctx))
}

// message builds a frame as peer would send it into session s1.
func message(peer string, p protocol.Payload) protocol.Message {
	return protocol.Sender{ID: peer, Name: "user " + peer, SessionID: "s1"}.New(p)
}
