package protocol

import (
	"strings"

	"satukanvas/internal/document"
)

// Payload is the kind-specific body of a message.
type Payload interface {
	Kind() Kind
	Validate() error
}

// JoinPayload announces a collaborator. Owner is set only by the client the
// session-creation API named as owner.
type JoinPayload struct {
	Owner bool   `json:"owner,omitempty"`
	Color string `json:"color,omitempty"`
}

func (JoinPayload) Kind() Kind      { return KindJoin }
func (JoinPayload) Validate() error { return nil }

type LeavePayload struct{}

func (LeavePayload) Kind() Kind      { return KindLeave }
func (LeavePayload) Validate() error { return nil }

type AddObjectPayload struct {
	Object document.Object `json:"object"`
}

func (AddObjectPayload) Kind() Kind { return KindAddObject }

func (p AddObjectPayload) Validate() error {
	if p.Object.ID == "" {
		return invalid(KindAddObject, "object.id", "is required")
	}
	return nil
}

type UpdateObjectPayload struct {
	ObjectID string         `json:"objectId"`
	Updates  map[string]any `json:"updates"`
}

func (UpdateObjectPayload) Kind() Kind { return KindUpdateObject }

func (p UpdateObjectPayload) Validate() error {
	if p.ObjectID == "" {
		return invalid(KindUpdateObject, "objectId", "is required")
	}
	if len(p.Updates) == 0 {
		return invalid(KindUpdateObject, "updates", "must not be empty")
	}
	return nil
}

type RemoveObjectPayload struct {
	ObjectID string `json:"objectId"`
}

func (RemoveObjectPayload) Kind() Kind { return KindRemoveObject }

func (p RemoveObjectPayload) Validate() error {
	if p.ObjectID == "" {
		return invalid(KindRemoveObject, "objectId", "is required")
	}
	return nil
}

// UpdatePathPayload replaces the derived path. An empty list clears it; a
// missing one is invalid.
type UpdatePathPayload struct {
	Path []document.Point `json:"path"`
}

func (UpdatePathPayload) Kind() Kind { return KindUpdatePath }

func (p UpdatePathPayload) Validate() error {
	if p.Path == nil {
		return invalid(KindUpdatePath, "path", "is required")
	}
	return nil
}

type CursorMovePayload struct {
	Position *document.Point `json:"position"`
}

func (CursorMovePayload) Kind() Kind { return KindCursorMove }

func (p CursorMovePayload) Validate() error {
	if p.Position == nil {
		return invalid(KindCursorMove, "position", "is required")
	}
	return nil
}

type SyncRequestPayload struct{}

func (SyncRequestPayload) Kind() Kind      { return KindSyncRequest }
func (SyncRequestPayload) Validate() error { return nil }

// Peer is a roster entry carried in a sync response so the joiner learns who
// was already there.
type Peer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Color       string `json:"color,omitempty"`
	Owner       bool   `json:"owner,omitempty"`
}

type SyncResponsePayload struct {
	Snapshot      *document.Snapshot `json:"snapshot"`
	Collaborators []Peer             `json:"collaborators,omitempty"`
}

func (SyncResponsePayload) Kind() Kind { return KindSyncResponse }

func (p SyncResponsePayload) Validate() error {
	if p.Snapshot == nil {
		return invalid(KindSyncResponse, "snapshot", "is required")
	}
	for _, obj := range p.Snapshot.Objects {
		if obj.ID == "" {
			return invalid(KindSyncResponse, "snapshot.objects[].id", "is required")
		}
	}
	for _, peer := range p.Collaborators {
		if peer.ID == "" {
			return invalid(KindSyncResponse, "collaborators[].id", "is required")
		}
	}
	return nil
}

type ChatPayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

func (ChatPayload) Kind() Kind { return KindChat }

func (p ChatPayload) Validate() error {
	if p.ID == "" {
		return invalid(KindChat, "id", "is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return invalid(KindChat, "content", "must not be blank")
	}
	return nil
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (ErrorPayload) Kind() Kind { return KindError }

func (p ErrorPayload) Validate() error {
	if p.Message == "" {
		return invalid(KindError, "message", "is required")
	}
	return nil
}
