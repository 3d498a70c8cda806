package repository

import (
	"context"
	"database/sql"

	"satukanvas/internal/session/model"
	"satukanvas/pkg/logger"
)

type SessionRepository struct {
	DB *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(ctx context.Context, id, documentID, ownerID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO collab_sessions (id, document_id, owner_id, created_at) VALUES ($1, $2, $3, NOW())`,
		id, documentID, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create session: %v", err)
	}
	return err
}

// Get returns sql.ErrNoRows when the session does not exist.
func (r *SessionRepository) Get(ctx context.Context, id string) (model.Session, error) {
	var s model.Session
	var endedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, "SELECT id, document_id, owner_id, created_at, ended_at FROM collab_sessions WHERE id = $1", id).
		Scan(&s.ID, &s.DocumentID, &s.OwnerID, &s.CreatedAt, &endedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get session %s: %v", id, err)
		}
		return s, err
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return s, nil
}

func (r *SessionRepository) AddMember(ctx context.Context, sessionID, userID, displayName, color string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO session_members (session_id, user_id, display_name, color, joined_at) VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (session_id, user_id) DO UPDATE SET display_name = $3, color = $4`, sessionID, userID, displayName, color)
	if err != nil {
		logger.Sugar.Errorf("Failed to add member %s to session %s: %v", userID, sessionID, err)
	}
	return err
}

func (r *SessionRepository) RemoveMember(ctx context.Context, sessionID, userID string) (int64, error) {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM session_members WHERE session_id = $1 AND user_id = $2", sessionID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to remove member %s from session %s: %v", userID, sessionID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) Members(ctx context.Context, sessionID string) ([]model.Member, error) {
	query := `
		SELECT m.user_id, m.display_name, m.color, m.user_id = s.owner_id, m.joined_at
		FROM session_members m JOIN collab_sessions s ON s.id = m.session_id
		WHERE m.session_id = $1
		ORDER BY m.joined_at, m.user_id`
	rows, err := r.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get members of session %s: %v", sessionID, err)
		return nil, err
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.Color, &m.Owner, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *SessionRepository) IsActiveMember(ctx context.Context, sessionID, userID string) (bool, error) {
	var ok bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM session_members m JOIN collab_sessions s ON s.id = m.session_id
			WHERE m.session_id = $1 AND m.user_id = $2 AND s.ended_at IS NULL
		)`, sessionID, userID).Scan(&ok)
	if err != nil {
		logger.Sugar.Errorf("Failed to check membership of %s in session %s: %v", userID, sessionID, err)
	}
	return ok, err
}

// End marks the session ended if ownerID owns it. It returns the number of
// rows changed, zero when the caller is not the owner or it already ended.
func (r *SessionRepository) End(ctx context.Context, sessionID, ownerID string) (int64, error) {
	result, err := r.DB.ExecContext(ctx, "UPDATE collab_sessions SET ended_at = NOW() WHERE id = $1 AND owner_id = $2 AND ended_at IS NULL", sessionID, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to end session %s: %v", sessionID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) EndByID(ctx context.Context, sessionID string) (int64, error) {
	result, err := r.DB.ExecContext(ctx, "UPDATE collab_sessions SET ended_at = NOW() WHERE id = $1 AND ended_at IS NULL", sessionID)
	if err != nil {
		logger.Sugar.Errorf("Failed to end idle session %s: %v", sessionID, err)
		return 0, err
	}
	return result.RowsAffected()
}
