package protocol

// Kind identifies a protocol event. The set is closed: anything else on the
// wire decodes to an UnknownKindError.
type Kind string

const (
	KindJoin         Kind = "JOIN"          // Collaborator entered the session (also the heartbeat)
	KindLeave        Kind = "LEAVE"         // Collaborator left
	KindUpdateObject Kind = "UPDATE_OBJECT" // Patch of an object's attributes
	KindAddObject    Kind = "ADD_OBJECT"
	KindRemoveObject Kind = "REMOVE_OBJECT"
	KindUpdatePath   Kind = "UPDATE_PATH"
	KindCursorMove   Kind = "CURSOR_MOVE"
	KindSyncRequest  Kind = "SYNC_REQUEST"  // Late joiner asks the owner for a snapshot
	KindSyncResponse Kind = "SYNC_RESPONSE" // Owner's full snapshot
	KindChat         Kind = "CHAT"
	KindError        Kind = "ERROR"
)

var knownKinds = map[Kind]struct{}{
	KindJoin:         {},
	KindLeave:        {},
	KindUpdateObject: {},
	KindAddObject:    {},
	KindRemoveObject: {},
	KindUpdatePath:   {},
	KindCursorMove:   {},
	KindSyncRequest:  {},
	KindSyncResponse: {},
	KindChat:         {},
	KindError:        {},
}

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{
		KindJoin, KindLeave, KindUpdateObject, KindAddObject, KindRemoveObject,
		KindUpdatePath, KindCursorMove, KindSyncRequest, KindSyncResponse, KindChat, KindError,
	}
}

func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// IsMutation reports whether messages of this kind change document state.
func (k Kind) IsMutation() bool {
	switch k {
	case KindAddObject, KindUpdateObject, KindRemoveObject, KindUpdatePath:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }
