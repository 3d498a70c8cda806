package model

import (
	"time"
)

type Session struct {
	ID         string     `json:"sessionId"`
	DocumentID string     `json:"documentId"`
	OwnerID    string     `json:"ownerId"`
	CreatedAt  time.Time  `json:"createdAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

func (s Session) Active() bool { return s.EndedAt == nil }

type CreateSessionRequest struct {
	DocumentID string `json:"documentId"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	OwnerID   string `json:"ownerId"`
}

type JoinSessionRequest struct {
	DisplayName string `json:"displayName"`
	Color       string `json:"color,omitempty"`
}

type Member struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Color       string    `json:"color,omitempty"`
	Owner       bool      `json:"owner"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type JoinSessionResponse struct {
	SessionID  string   `json:"sessionId"`
	DocumentID string   `json:"documentId"`
	OwnerID    string   `json:"ownerId"`
	Members    []Member `json:"members"`
}
