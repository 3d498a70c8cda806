package client

import (
	"sync"
	"time"

	"satukanvas/internal/events"
)

type ChatEntry struct {
	ID         string
	SenderID   string
	SenderName string
	Content    string
	Timestamp  time.Time
}

func (e ChatEntry) event(sessionID string) events.ChatReceived {
	return events.ChatReceived{
		SessionID:  sessionID,
		ID:         e.ID,
		SenderID:   e.SenderID,
		SenderName: e.SenderName,
		Content:    e.Content,
		Timestamp:  e.Timestamp,
	}
}

// ChatLog is append-only. Entries are never retracted, and a repeated
// delivery of the same entry id is ignored.
type ChatLog struct {
	mu      sync.Mutex
	entries []ChatEntry
	seen    map[string]struct{}
}

func NewChatLog() *ChatLog {
	return &ChatLog{seen: make(map[string]struct{})}
}

// Append adds e and reports whether it was new.
func (l *ChatLog) Append(e ChatEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[e.ID]; ok {
		return false
	}
	l.seen[e.ID] = struct{}{}
	l.entries = append(l.entries, e)
	return true
}

func (l *ChatLog) Entries() []ChatEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ChatEntry(nil), l.entries...)
}
