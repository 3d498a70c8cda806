// Package events carries protocol notifications to UI and document consumers.
// Event is a closed union; switch on the concrete type.
package events

import (
	"time"

	"satukanvas/internal/document"
)

type Event interface {
	event()
}

// ConnectionStateChanged reports a state machine transition. Err is set when
// the transition was caused by a failure (open timeout, transport error).
type ConnectionStateChanged struct {
	SessionID string
	From      string
	To        string
	Err       error
}

type CollaboratorJoined struct {
	SessionID   string
	ID          string
	DisplayName string
	Color       string
	Owner       bool
}

type LeaveReason string

const (
	ReasonLeft     LeaveReason = "left"
	ReasonTimedOut LeaveReason = "timeout"
)

type CollaboratorLeft struct {
	SessionID string
	ID        string
	Reason    LeaveReason
}

type CursorMoved struct {
	SessionID string
	ID        string
	Position  document.Point
}

type ChatReceived struct {
	SessionID  string
	ID         string
	SenderID   string
	SenderName string
	Content    string
	Timestamp  time.Time
}

// SyncCompleted is emitted once the local document has a trusted starting
// point: either a snapshot from the owner arrived, or the local client is the
// owner and its own state is authoritative.
type SyncCompleted struct {
	SessionID string
	SourceID  string
	Objects   int
	Local     bool
}

// SyncTimedOut means nobody answered the sync request in time. Local state was kept.
type SyncTimedOut struct {
	SessionID string
	After     time.Duration
}

// ProtocolError reports an inbound message that was discarded, or a protocol
// anomaly worth surfacing. The session keeps running.
type ProtocolError struct {
	SessionID string
	SenderID  string
	Kind      string
	Err       error
}

func (ConnectionStateChanged) event() {}
func (CollaboratorJoined) event()     {}
func (CollaboratorLeft) event()       {}
func (CursorMoved) event()            {}
func (ChatReceived) event()           {}
func (SyncCompleted) event()          {}
func (SyncTimedOut) event()           {}
func (ProtocolError) event()          {}
