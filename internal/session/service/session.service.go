package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"satukanvas/internal/presence"
	"satukanvas/internal/session/model"
	"satukanvas/internal/session/repository"
	"satukanvas/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrForbidden       = errors.New("forbidden")
)

// Rooms is the live side of a session, implemented by the websocket hub.
type Rooms interface {
	CloseSession(sessionID string)
	Connected(sessionID string) int
}

type SessionService struct {
	Repo  *repository.SessionRepository
	Rooms Rooms

	// IdleGrace is how long an empty room may stay empty before the session
	// is ended, so a reconnecting client finds it still open.
	IdleGrace time.Duration
}

func NewSessionService(repo *repository.SessionRepository, rooms Rooms) *SessionService {
	return &SessionService{Repo: repo, Rooms: rooms, IdleGrace: time.Minute}
}

// CreateSession opens a session on documentID owned by userID. The owner is
// its first member.
func (s *SessionService) CreateSession(ctx context.Context, userID string, req model.CreateSessionRequest) (model.CreateSessionResponse, error) {
	documentID := strings.TrimSpace(req.DocumentID)
	if documentID == "" {
		documentID = uuid.NewString()
	}
	sessionID := uuid.NewString()
	if err := s.Repo.Create(ctx, sessionID, documentID, userID); err != nil {
		return model.CreateSessionResponse{}, err
	}
	if err := s.Repo.AddMember(ctx, sessionID, userID, userID, presence.ColorFor(userID)); err != nil {
		return model.CreateSessionResponse{}, err
	}
	logger.Sugar.Infof("Session %s created by %s on document %s", sessionID, userID, documentID)
	return model.CreateSessionResponse{SessionID: sessionID, OwnerID: userID}, nil
}

func (s *SessionService) JoinSession(ctx context.Context, sessionID, userID string, req model.JoinSessionRequest) (model.JoinSessionResponse, error) {
	sess, err := s.active(ctx, sessionID)
	if err != nil {
		return model.JoinSessionResponse{}, err
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = userID
	}
	color := req.Color
	if color == "" {
		color = presence.ColorFor(userID)
	}
	if err := s.Repo.AddMember(ctx, sessionID, userID, name, color); err != nil {
		return model.JoinSessionResponse{}, err
	}

	members, err := s.Repo.Members(ctx, sessionID)
	if err != nil {
		return model.JoinSessionResponse{}, err
	}
	return model.JoinSessionResponse{
		SessionID:  sess.ID,
		DocumentID: sess.DocumentID,
		OwnerID:    sess.OwnerID,
		Members:    members,
	}, nil
}

func (s *SessionService) LeaveSession(ctx context.Context, sessionID, userID string) error {
	n, err := s.Repo.RemoveMember(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// EndSession ends the session for everyone. Only the owner may do it.
func (s *SessionService) EndSession(ctx context.Context, sessionID, userID string) error {
	sess, err := s.active(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerID != userID {
		return ErrForbidden
	}
	n, err := s.Repo.End(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionEnded
	}
	if s.Rooms != nil {
		s.Rooms.CloseSession(sessionID)
	}
	logger.Sugar.Infof("Session %s ended by its owner", sessionID)
	return nil
}

// Members lists the members of a session. The caller must be one of them.
func (s *SessionService) Members(ctx context.Context, sessionID, userID string) ([]model.Member, error) {
	if _, err := s.get(ctx, sessionID); err != nil {
		return nil, err
	}
	members, err := s.Repo.Members(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return members, nil
		}
	}
	return nil, ErrForbidden
}

// CanJoin reports whether userID may open a live channel into the session.
func (s *SessionService) CanJoin(ctx context.Context, sessionID, userID string) (bool, error) {
	return s.Repo.IsActiveMember(ctx, sessionID, userID)
}

// EndIdle ends a session whose room stayed empty for IdleGrace. It blocks for
// the grace period and is meant to run in its own goroutine.
func (s *SessionService) EndIdle(sessionID string) {
	if s.IdleGrace > 0 {
		time.Sleep(s.IdleGrace)
	}
	if s.Rooms != nil && s.Rooms.Connected(sessionID) > 0 {
		return
	}
	n, err := s.Repo.EndByID(context.Background(), sessionID)
	if err != nil {
		return
	}
	if n > 0 {
		logger.Sugar.Infof("Session %s ended after its room stayed empty", sessionID)
	}
}

func (s *SessionService) get(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := s.Repo.Get(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, ErrSessionNotFound
	}
	return sess, err
}

func (s *SessionService) active(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := s.get(ctx, sessionID)
	if err != nil {
		return sess, err
	}
	if !sess.Active() {
		return sess, ErrSessionEnded
	}
	return sess, nil
}
