package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the wire shape of a message with the payload left undecoded.
// The relay server works at this level so it can forward kinds it does not
// know.
type Envelope struct {
	Kind       Kind            `json:"kind"`
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName"`
	SessionID  string          `json:"sessionId"`
	Timestamp  string          `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses the outer message shape only.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing kind", ErrDecode)
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Encode serialises m. Payloads are validated first, so a malformed message
// never reaches the wire.
func Encode(m Message) ([]byte, error) {
	if !m.Kind.Known() {
		return nil, &UnknownKindError{Kind: m.Kind}
	}
	env := Envelope{
		Kind:       m.Kind,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SessionID:  m.SessionID,
		Timestamp:  m.Timestamp.UTC().Format(TimeFormat),
	}
	if m.Payload != nil {
		if m.Payload.Kind() != m.Kind {
			return nil, invalid(m.Kind, "payload", fmt.Sprintf("has kind %s", m.Payload.Kind()))
		}
		if err := m.Payload.Validate(); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Kind, err)
		}
		env.Payload = raw
	}
	return env.Encode()
}

// Decode parses data into a Message. For an unknown kind the returned
// message still carries the envelope fields so callers can log who sent it.
func Decode(data []byte) (Message, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return Message{}, err
	}

	ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("%w: timestamp: %v", ErrDecode, err)
	}
	m := Message{
		Kind:       env.Kind,
		SenderID:   env.SenderID,
		SenderName: env.SenderName,
		SessionID:  env.SessionID,
		Timestamp:  ts.UTC(),
	}
	if !env.Kind.Known() {
		return m, &UnknownKindError{Kind: env.Kind}
	}

	p, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return m, err
	}
	m.Payload = p
	return m, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindJoin:
		return unmarshalPayload[JoinPayload](kind, raw, true)
	case KindLeave:
		return unmarshalPayload[LeavePayload](kind, raw, true)
	case KindAddObject:
		return unmarshalPayload[AddObjectPayload](kind, raw, false)
	case KindUpdateObject:
		return unmarshalPayload[UpdateObjectPayload](kind, raw, false)
	case KindRemoveObject:
		return unmarshalPayload[RemoveObjectPayload](kind, raw, false)
	case KindUpdatePath:
		return unmarshalPayload[UpdatePathPayload](kind, raw, false)
	case KindCursorMove:
		return unmarshalPayload[CursorMovePayload](kind, raw, false)
	case KindSyncRequest:
		return unmarshalPayload[SyncRequestPayload](kind, raw, true)
	case KindSyncResponse:
		return unmarshalPayload[SyncResponsePayload](kind, raw, false)
	case KindChat:
		return unmarshalPayload[ChatPayload](kind, raw, false)
	case KindError:
		return unmarshalPayload[ErrorPayload](kind, raw, false)
	}
	return nil, &UnknownKindError{Kind: kind}
}

func unmarshalPayload[T Payload](kind Kind, raw json.RawMessage, optional bool) (Payload, error) {
	var p T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if !optional {
			return nil, invalid(kind, "payload", "is required")
		}
		return p, nil
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, invalid(kind, "payload", err.Error())
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
