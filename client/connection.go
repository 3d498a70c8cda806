package client

import (
	"context"
	"errors"
	"time"

	"satukanvas/internal/events"
	"satukanvas/pkg/logger"
	"satukanvas/protocol"
)

// Connect starts opening the transport and returns without waiting for it.
// It is a no-op while connecting or connected. Progress is reported through
// ConnectionStateChanged events; use ConnectWait to block until the outcome.
//
// ctx bounds the open attempt only, together with the configured open timeout.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Identity.ID == "" {
		return ErrNotAuthenticated
	}
	if c.cfg.SessionID == "" {
		return ErrInvalidSession
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	ev := c.setStateLocked(StateConnecting, nil)
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timing.OpenTimeout)
	c.attempt++
	attempt := c.attempt
	c.cancelDial = cancel
	c.mu.Unlock()

	c.publish(ev)
	logger.Sugar.Infof("session %s: connecting as %s", c.cfg.SessionID, c.cfg.Identity.ID)
	go c.open(dialCtx, cancel, attempt)
	return nil
}

// ConnectWait connects and blocks until the connection is established or the
// attempt fails.
func (c *Client) ConnectWait(ctx context.Context) error {
	done := make(chan error, 1)
	unsubscribe := c.bus.Subscribe(func(e events.Event) {
		sc, ok := e.(events.ConnectionStateChanged)
		if !ok || sc.SessionID != c.cfg.SessionID {
			return
		}
		var result error
		switch sc.To {
		case StateConnected.String():
		case StateError.String(), StateDisconnected.String():
			result = sc.Err
			if result == nil {
				result = errConnectAborted
			}
		default:
			return
		}
		select {
		case done <- result:
		default:
		}
	})
	defer unsubscribe()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	if c.State() == StateConnected {
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) open(ctx context.Context, cancel context.CancelFunc, attempt uint64) {
	defer cancel()
	conn, err := c.cfg.Transport.Dial(ctx, c.cfg.SessionID)

	c.mu.Lock()
	if attempt != c.attempt || c.state != StateConnecting {
		// Disconnect won the race; never leave the late handle open.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errors.Join(ErrOpenTimeout, err)
		}
		terr := &TransportError{Op: "open", Err: err}
		ev := c.setStateLocked(StateError, terr)
		c.mu.Unlock()

		logger.Sugar.Warnf("session %s: open failed: %v", c.cfg.SessionID, err)
		c.publish(ev)
		return
	}

	c.conn = conn
	evs := []events.Event{c.setStateLocked(StateConnected, nil)}
	c.roster.AddSelf(c.cfg.Identity.DisplayName, c.cfg.Identity.Color, time.Now())

	// Join and SyncRequest go out while mu is held, so nothing queued by the
	// application can overtake them.
	err = c.writeLocked(c.joinMessage())
	if err == nil {
		err = c.writeLocked(c.sender.New(protocol.SyncRequestPayload{}))
	}
	if err != nil {
		evs = append(evs, c.teardownLocked(err)...)
		c.mu.Unlock()
		logger.Sugar.Warnf("session %s: handshake failed: %v", c.cfg.SessionID, err)
		c.publish(evs...)
		return
	}

	stop := make(chan struct{})
	c.stop = stop
	evs = append(evs, c.beginSyncLocked()...)
	c.mu.Unlock()

	logger.Sugar.Infof("session %s: connected", c.cfg.SessionID)
	c.publish(evs...)
	go c.readLoop(conn)
	go c.maintain(stop)
}

// Disconnect leaves the session. It is safe in every state: mid-connect it
// abandons the open attempt, when connected it sends a best-effort Leave and
// closes the channel.
func (c *Client) Disconnect() {
	c.mu.Lock()
	var evs []events.Event

	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return
	case StateConnecting:
		c.attempt++
		if c.cancelDial != nil {
			c.cancelDial()
			c.cancelDial = nil
		}
		evs = append(evs, c.setStateLocked(StateDisconnected, nil))
	case StateError:
		evs = append(evs, c.setStateLocked(StateDisconnected, nil))
	case StateConnected:
		evs = append(evs, c.setStateLocked(StateDisconnecting, nil))
		if err := c.writeLocked(c.sender.New(protocol.LeavePayload{})); err != nil {
			logger.Sugar.Debugf("session %s: leave not delivered: %v", c.cfg.SessionID, err)
		}
		evs = append(evs, c.teardownLocked(nil)...)
	}
	c.mu.Unlock()

	logger.Sugar.Infof("session %s: disconnected", c.cfg.SessionID)
	c.publish(evs...)
}

// Send transmits m. It fails with ErrNotConnected outside StateConnected and
// never drops a message silently. A transport failure also drops the
// connection.
func (c *Client) Send(m protocol.Message) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	err := c.writeLocked(m)
	var evs []events.Event
	var terr *TransportError
	if errors.As(err, &terr) {
		evs = c.teardownLocked(err)
	}
	c.mu.Unlock()

	c.publish(evs...)
	return err
}

// CheckLiveness reconciles the state with the transport's real status, for
// when a close went unnoticed. It reconnects only if autoReconnect is set.
func (c *Client) CheckLiveness(ctx context.Context, autoReconnect bool) (State, error) {
	c.mu.Lock()
	var evs []events.Event
	if c.state == StateConnected && (c.conn == nil || !c.conn.Ready()) {
		logger.Sugar.Warnf("session %s: state said connected but transport is gone", c.cfg.SessionID)
		evs = c.teardownLocked(&TransportError{Op: "liveness", Err: errTransportNotReady})
	}
	state := c.state
	c.mu.Unlock()
	c.publish(evs...)

	if autoReconnect && (state == StateDisconnected || state == StateError) {
		if err := c.Connect(ctx); err != nil {
			return c.State(), err
		}
	}
	return c.State(), nil
}

func (c *Client) readLoop(conn Conn) {
	for {
		data, err := conn.Receive()
		if err != nil {
			c.transportClosed(conn, err)
			return
		}
		if !c.isCurrent(conn) {
			return
		}
		c.handleInbound(data)
	}
}

func (c *Client) transportClosed(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Disconnect already tore this connection down.
		c.mu.Unlock()
		return
	}
	evs := c.teardownLocked(&TransportError{Op: "receive", Err: err})
	c.mu.Unlock()

	logger.Sugar.Warnf("session %s: transport closed: %v", c.cfg.SessionID, err)
	c.publish(evs...)
}

func (c *Client) isCurrent(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn && c.state == StateConnected
}

// maintain re-announces the local client and evicts silent collaborators
// until stop is closed.
func (c *Client) maintain(stop <-chan struct{}) {
	heartbeat := time.NewTicker(c.cfg.Timing.HeartbeatInterval)
	defer heartbeat.Stop()
	sweep := time.NewTicker(c.cfg.Timing.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-stop:
			return
		case <-heartbeat.C:
			if err := c.Send(c.joinMessage()); err != nil {
				logger.Sugar.Debugf("session %s: heartbeat failed: %v", c.cfg.SessionID, err)
			}
		case now := <-sweep.C:
			c.SweepStale(now)
		}
	}
}

// SweepStale evicts collaborators silent for longer than the stale window.
func (c *Client) SweepStale(now time.Time) []string {
	evicted := c.roster.Sweep(now, c.cfg.Timing.StaleAfter)
	for _, id := range evicted {
		logger.Sugar.Infof("session %s: evicting %s after %s of silence", c.cfg.SessionID, id, c.cfg.Timing.StaleAfter)
		c.publish(events.CollaboratorLeft{SessionID: c.cfg.SessionID, ID: id, Reason: events.ReasonTimedOut})
	}
	return evicted
}

func (c *Client) joinMessage() protocol.Message {
	return c.sender.New(protocol.JoinPayload{
		Owner: c.roster.IsSelfOwner(),
		Color: c.cfg.Identity.Color,
	})
}

// writeLocked encodes and sends m. Encoding failures come back as codec
// errors, channel failures as *TransportError.
func (c *Client) writeLocked(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := c.conn.Send(data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// teardownLocked releases the current connection and moves to Disconnected.
func (c *Client) teardownLocked(cause error) []events.Event {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.cancelSyncLocked()
	c.synced = false
	c.roster.Reset()
	return []events.Event{c.setStateLocked(StateDisconnected, cause)}
}

func (c *Client) setStateLocked(to State, err error) events.Event {
	from := c.state
	c.state = to
	return events.ConnectionStateChanged{
		SessionID: c.cfg.SessionID,
		From:      from.String(),
		To:        to.String(),
		Err:       err,
	}
}
