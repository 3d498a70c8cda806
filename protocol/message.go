package protocol

import (
	"time"
)

// TimeFormat is ISO8601 with millisecond precision, always in UTC.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Message is one protocol event. It is never mutated after being sent.
type Message struct {
	Kind       Kind
	SenderID   string
	SenderName string
	SessionID  string
	Timestamp  time.Time
	Payload    Payload
}

// Sender identifies who is emitting messages.
type Sender struct {
	ID        string
	Name      string
	SessionID string
}

// New builds a message for p stamped with the current time at the wire's
// precision, so decode(encode(m)) yields the same timestamp.
func (s Sender) New(p Payload) Message {
	return Message{
		Kind:       p.Kind(),
		SenderID:   s.ID,
		SenderName: s.Name,
		SessionID:  s.SessionID,
		Timestamp:  Now(),
		Payload:    p,
	}
}

// Now returns the current UTC time truncated to the wire precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
