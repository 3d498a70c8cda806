package client

import (
	"errors"
	"time"

	"satukanvas/internal/document"
	"satukanvas/internal/events"
	"satukanvas/pkg/logger"
	"satukanvas/protocol"

	"github.com/google/uuid"
)

// handleInbound decodes one frame and routes it. Nothing here can stop the
// session: bad frames are logged, reported and dropped.
func (c *Client) handleInbound(data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownMessageKind) {
			logger.Sugar.Debugf("session %s: discarding %v from %s", c.cfg.SessionID, err, m.SenderID)
		} else {
			logger.Sugar.Warnf("session %s: discarding frame from %q: %v", c.cfg.SessionID, m.SenderID, err)
		}
		c.publish(events.ProtocolError{SessionID: c.cfg.SessionID, SenderID: m.SenderID, Kind: m.Kind.String(), Err: err})
		return
	}
	c.publish(c.dispatch(m)...)
}

func (c *Client) dispatch(m protocol.Message) []events.Event {
	if m.SessionID != "" && m.SessionID != c.cfg.SessionID {
		logger.Sugar.Warnf("session %s: dropping %s addressed to session %s", c.cfg.SessionID, m.Kind, m.SessionID)
		return nil
	}
	// Self-echo: some transports reflect our own frames back.
	if m.SenderID == c.cfg.Identity.ID {
		return nil
	}

	now := time.Now()
	c.roster.Touch(m.SenderID, now)

	switch p := m.Payload.(type) {
	case protocol.JoinPayload:
		return c.handleJoin(m, p, now)
	case protocol.LeavePayload:
		if c.roster.Leave(m.SenderID) {
			return []events.Event{events.CollaboratorLeft{SessionID: c.cfg.SessionID, ID: m.SenderID, Reason: events.ReasonLeft}}
		}
	case protocol.CursorMovePayload:
		if !c.roster.MoveCursor(m.SenderID, *p.Position, now) {
			logger.Sugar.Debugf("session %s: cursor from unknown collaborator %s", c.cfg.SessionID, m.SenderID)
			return nil
		}
		return []events.Event{events.CursorMoved{SessionID: c.cfg.SessionID, ID: m.SenderID, Position: *p.Position}}
	case protocol.AddObjectPayload, protocol.UpdateObjectPayload, protocol.RemoveObjectPayload, protocol.UpdatePathPayload:
		return c.applyRemote(m)
	case protocol.SyncRequestPayload:
		c.answerSync(m)
	case protocol.SyncResponsePayload:
		return c.applySync(m, p)
	case protocol.ChatPayload:
		entry := ChatEntry{ID: p.ID, SenderID: m.SenderID, SenderName: m.SenderName, Content: p.Content, Timestamp: m.Timestamp}
		if c.chat.Append(entry) {
			return []events.Event{entry.event(c.cfg.SessionID)}
		}
	case protocol.ErrorPayload:
		logger.Sugar.Warnf("session %s: error from %s: %s", c.cfg.SessionID, m.SenderID, p.Message)
		return []events.Event{events.ProtocolError{
			SessionID: c.cfg.SessionID,
			SenderID:  m.SenderID,
			Kind:      m.Kind.String(),
			Err:       &RemoteError{SenderID: m.SenderID, Code: p.Code, Message: p.Message},
		}}
	}
	return nil
}

func (c *Client) handleJoin(m protocol.Message, p protocol.JoinPayload, now time.Time) []events.Event {
	res, ok := c.roster.Join(m.SenderID, m.SenderName, p.Color, p.Owner, now)
	if !ok {
		return nil
	}
	var evs []events.Event
	if res.OwnerConflict {
		evs = append(evs, events.ProtocolError{
			SessionID: c.cfg.SessionID,
			SenderID:  m.SenderID,
			Kind:      m.Kind.String(),
			Err:       ErrOwnershipConflict,
		})
	}
	if res.New {
		logger.Sugar.Infof("session %s: %s (%s) joined", c.cfg.SessionID, m.SenderID, m.SenderName)
		evs = append(evs, c.joinedEvent(res.Collaborator))
	}
	return evs
}

// applyRemote applies a peer's edit. Edits are keyed by object id, so a
// duplicate delivery just rewrites the same values.
func (c *Client) applyRemote(m protocol.Message) []events.Event {
	var err error
	switch p := m.Payload.(type) {
	case protocol.AddObjectPayload:
		err = c.doc.AddObject(p.Object)
	case protocol.UpdateObjectPayload:
		err = c.doc.UpdateObject(p.ObjectID, p.Updates)
		if errors.Is(err, document.ErrObjectNotFound) {
			// Removed concurrently by someone else; last writer wins.
			logger.Sugar.Debugf("session %s: update for missing object %s from %s", c.cfg.SessionID, p.ObjectID, m.SenderID)
			return nil
		}
	case protocol.RemoveObjectPayload:
		err = c.doc.RemoveObject(p.ObjectID)
	case protocol.UpdatePathPayload:
		err = c.doc.SetPath(p.Path)
	}
	if err != nil {
		logger.Sugar.Warnf("session %s: applying %s from %s: %v", c.cfg.SessionID, m.Kind, m.SenderID, err)
		return []events.Event{events.ProtocolError{SessionID: c.cfg.SessionID, SenderID: m.SenderID, Kind: m.Kind.String(), Err: err}}
	}
	return nil
}

// edit sends p and, once the send succeeded, applies the same mutation
// locally. A failed send leaves the local document untouched.
func (c *Client) edit(p protocol.Payload, apply func() error) error {
	if err := c.Send(c.sender.New(p)); err != nil {
		return err
	}
	return apply()
}

func (c *Client) AddObject(obj document.Object) error {
	return c.edit(protocol.AddObjectPayload{Object: obj}, func() error { return c.doc.AddObject(obj) })
}

func (c *Client) UpdateObject(id string, updates map[string]any) error {
	return c.edit(protocol.UpdateObjectPayload{ObjectID: id, Updates: updates}, func() error {
		return c.doc.UpdateObject(id, updates)
	})
}

func (c *Client) RemoveObject(id string) error {
	return c.edit(protocol.RemoveObjectPayload{ObjectID: id}, func() error { return c.doc.RemoveObject(id) })
}

func (c *Client) SetPath(path []document.Point) error {
	if path == nil {
		path = []document.Point{}
	}
	return c.edit(protocol.UpdatePathPayload{Path: path}, func() error { return c.doc.SetPath(path) })
}

// MoveCursor broadcasts the local cursor. Cursor traffic is best effort.
func (c *Client) MoveCursor(pos document.Point) error {
	return c.Send(c.sender.New(protocol.CursorMovePayload{Position: &pos}))
}

// SendChat broadcasts a chat line and appends it to the local log.
func (c *Client) SendChat(content string) (ChatEntry, error) {
	m := c.sender.New(protocol.ChatPayload{ID: uuid.NewString(), Content: content})
	if err := c.Send(m); err != nil {
		return ChatEntry{}, err
	}
	p := m.Payload.(protocol.ChatPayload)
	entry := ChatEntry{ID: p.ID, SenderID: m.SenderID, SenderName: m.SenderName, Content: p.Content, Timestamp: m.Timestamp}
	c.chat.Append(entry)
	return entry, nil
}
