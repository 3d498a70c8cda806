package client

import (
	"time"

	"satukanvas/internal/events"
	"satukanvas/internal/presence"
	"satukanvas/pkg/logger"
	"satukanvas/protocol"
)

// beginSyncLocked starts waiting for the owner's snapshot after the join
// handshake. The owner has nothing to wait for: its own state is the
// reference.
func (c *Client) beginSyncLocked() []events.Event {
	c.cancelSyncLocked()
	if c.roster.IsSelfOwner() {
		c.synced = true
		return []events.Event{events.SyncCompleted{
			SessionID: c.cfg.SessionID,
			SourceID:  c.cfg.Identity.ID,
			Objects:   len(c.doc.ExportSnapshot().Objects),
			Local:     true,
		}}
	}
	c.armSyncTimerLocked()
	return nil
}

func (c *Client) armSyncTimerLocked() {
	c.syncRound++
	round := c.syncRound
	c.syncPending = true
	c.syncTimer = time.AfterFunc(c.cfg.Timing.SyncTimeout, func() { c.syncTimedOut(round) })
}

func (c *Client) cancelSyncLocked() {
	if c.syncTimer != nil {
		c.syncTimer.Stop()
		c.syncTimer = nil
	}
	c.syncPending = false
	c.syncRound++
}

func (c *Client) syncTimedOut(round uint64) {
	c.mu.Lock()
	if round != c.syncRound || !c.syncPending || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.syncPending = false
	c.syncTimer = nil
	c.mu.Unlock()

	logger.Sugar.Warnf("session %s: %v after %s, keeping local state", c.cfg.SessionID, ErrSyncTimeout, c.cfg.Timing.SyncTimeout)
	c.publish(events.SyncTimedOut{SessionID: c.cfg.SessionID, After: c.cfg.Timing.SyncTimeout})
}

// RequestSync asks the owner for a fresh snapshot. Every peer applies the
// owner's answer, so this also pulls diverged peers back together.
func (c *Client) RequestSync() error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if err := c.writeLocked(c.sender.New(protocol.SyncRequestPayload{})); err != nil {
		evs := c.teardownLocked(err)
		c.mu.Unlock()
		c.publish(evs...)
		return err
	}
	if !c.roster.IsSelfOwner() {
		c.cancelSyncLocked()
		c.armSyncTimerLocked()
	}
	c.mu.Unlock()
	return nil
}

// answerSync replies to a SyncRequest when the local client is the owner.
func (c *Client) answerSync(m protocol.Message) {
	if !c.roster.IsSelfOwner() {
		return
	}
	snap := c.doc.ExportSnapshot()
	var peers []protocol.Peer
	for _, p := range c.roster.Peers() {
		peers = append(peers, protocol.Peer{ID: p.ID, DisplayName: p.DisplayName, Color: p.Color, Owner: p.Owner})
	}

	resp := c.sender.New(protocol.SyncResponsePayload{Snapshot: &snap, Collaborators: peers})
	if err := c.Send(resp); err != nil {
		logger.Sugar.Warnf("session %s: sync response to %s failed: %v", c.cfg.SessionID, m.SenderID, err)
		return
	}
	logger.Sugar.Debugf("session %s: sent snapshot (%d objects) for %s", c.cfg.SessionID, len(snap.Objects), m.SenderID)
}

// applySync replaces the local document with the snapshot wholesale and
// learns the roster the owner knows about.
func (c *Client) applySync(m protocol.Message, p protocol.SyncResponsePayload) []events.Event {
	if owner := c.roster.OwnerID(); owner != "" && owner != m.SenderID {
		logger.Sugar.Warnf("session %s: snapshot from %s who is not the owner %s", c.cfg.SessionID, m.SenderID, owner)
	}
	if err := c.doc.ImportSnapshot(*p.Snapshot); err != nil {
		return []events.Event{events.ProtocolError{
			SessionID: c.cfg.SessionID,
			SenderID:  m.SenderID,
			Kind:      m.Kind.String(),
			Err:       err,
		}}
	}

	peers := make([]presence.Peer, 0, len(p.Collaborators))
	for _, peer := range p.Collaborators {
		peers = append(peers, presence.Peer{ID: peer.ID, DisplayName: peer.DisplayName, Color: peer.Color, Owner: peer.Owner})
	}
	var evs []events.Event
	for _, added := range c.roster.Merge(peers, time.Now()) {
		evs = append(evs, c.joinedEvent(added))
	}

	c.mu.Lock()
	c.cancelSyncLocked()
	c.synced = true
	c.mu.Unlock()

	logger.Sugar.Infof("session %s: synced %d objects from %s", c.cfg.SessionID, len(p.Snapshot.Objects), m.SenderID)
	return append(evs, events.SyncCompleted{
		SessionID: c.cfg.SessionID,
		SourceID:  m.SenderID,
		Objects:   len(p.Snapshot.Objects),
	})
}

func (c *Client) joinedEvent(col presence.Collaborator) events.Event {
	return events.CollaboratorJoined{
		SessionID:   c.cfg.SessionID,
		ID:          col.ID,
		DisplayName: col.DisplayName,
		Color:       col.Color,
		Owner:       col.ID == c.roster.OwnerID(),
	}
}
