package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by every send attempted outside StateConnected.
	ErrNotConnected = errors.New("client: not connected")
	// ErrNotAuthenticated means connect was called without a local identity.
	ErrNotAuthenticated = errors.New("client: no identity")
	// ErrInvalidSession means connect was called without a session id.
	ErrInvalidSession = errors.New("client: no session id")
	// ErrOpenTimeout means the transport did not open within the open timeout.
	ErrOpenTimeout = errors.New("client: open timed out")
	// ErrSyncTimeout means no owner answered a sync request in time.
	ErrSyncTimeout = errors.New("client: sync timed out")
	// ErrOwnershipConflict is reported when a second collaborator claims ownership.
	ErrOwnershipConflict = errors.New("client: conflicting ownership claim")

	errTransportNotReady = errors.New("transport not ready")
	errConnectAborted    = errors.New("client: connect aborted")
)

// TransportError wraps a failure of the underlying channel. Recovering from
// it (reconnecting) is the caller's decision.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is an ERROR message received from a peer or the relay.
type RemoteError struct {
	SenderID string
	Code     string
	Message  string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote error from %s: %s", e.SenderID, e.Message)
	}
	return fmt.Sprintf("remote error from %s: %s (%s)", e.SenderID, e.Message, e.Code)
}
