package service

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"
	"time"

	"satukanvas/internal/session/model"
	"satukanvas/internal/session/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRooms struct {
	mu        sync.Mutex
	closed    []string
	connected int
}

func (f *fakeRooms) CloseSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
}

func (f *fakeRooms) Connected(string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func newTestService(t *testing.T) (*SessionService, sqlmock.Sqlmock, *fakeRooms) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rooms := &fakeRooms{}
	svc := NewSessionService(repository.NewSessionRepository(db), rooms)
	svc.IdleGrace = 0
	return svc, mock, rooms
}

var sessionColumns = []string{"id", "document_id", "owner_id", "created_at", "ended_at"}

const getSession = "SELECT id, document_id, owner_id, created_at, ended_at FROM collab_sessions WHERE id = $1"

func expectSession(mock sqlmock.Sqlmock, id, ownerID string, ended bool) {
	var endedAt any
	if ended {
		endedAt = time.Now()
	}
	mock.ExpectQuery(regexp.QuoteMeta(getSession)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(id, "doc-1", ownerID, time.Now(), endedAt))
}

func TestCreateSession(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectExec("INSERT INTO collab_sessions").
		WithArgs(sqlmock.AnyArg(), "doc-1", "owner").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO session_members").
		WithArgs(sqlmock.AnyArg(), "owner", "owner", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	resp, err := svc.CreateSession(context.Background(), "owner", model.CreateSessionRequest{DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "owner", resp.OwnerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinSession(t *testing.T) {
	svc, mock, _ := newTestService(t)

	expectSession(mock, "s1", "owner", false)
	mock.ExpectExec("INSERT INTO session_members").
		WithArgs("s1", "user-2", "Bea", "#fff").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT m.user_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "display_name", "color", "owner", "joined_at"}).
			AddRow("owner", "owner", "#000", true, time.Now()).
			AddRow("user-2", "Bea", "#fff", false, time.Now()))

	resp, err := svc.JoinSession(context.Background(), "s1", "user-2", model.JoinSessionRequest{DisplayName: " Bea ", Color: "#fff"})
	require.NoError(t, err)
	assert.Equal(t, "owner", resp.OwnerID)
	assert.Equal(t, "doc-1", resp.DocumentID)
	require.Len(t, resp.Members, 2)
	assert.True(t, resp.Members[0].Owner)
	assert.False(t, resp.Members[1].Owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinSessionErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		svc, mock, _ := newTestService(t)
		mock.ExpectQuery(regexp.QuoteMeta(getSession)).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := svc.JoinSession(context.Background(), "nope", "u", model.JoinSessionRequest{})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("ended", func(t *testing.T) {
		svc, mock, _ := newTestService(t)
		expectSession(mock, "s1", "owner", true)

		_, err := svc.JoinSession(context.Background(), "s1", "u", model.JoinSessionRequest{})
		assert.ErrorIs(t, err, ErrSessionEnded)
	})
}

func TestEndSession(t *testing.T) {
	t.Run("owner ends and room closes", func(t *testing.T) {
		svc, mock, rooms := newTestService(t)
		expectSession(mock, "s1", "owner", false)
		mock.ExpectExec("UPDATE collab_sessions SET ended_at").
			WithArgs("s1", "owner").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, svc.EndSession(context.Background(), "s1", "owner"))
		assert.Equal(t, []string{"s1"}, rooms.closed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non owner is forbidden", func(t *testing.T) {
		svc, mock, rooms := newTestService(t)
		expectSession(mock, "s1", "owner", false)

		assert.ErrorIs(t, svc.EndSession(context.Background(), "s1", "guest"), ErrForbidden)
		assert.Empty(t, rooms.closed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLeaveSession(t *testing.T) {
	svc, mock, _ := newTestService(t)
	mock.ExpectExec("DELETE FROM session_members").
		WithArgs("s1", "u").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, svc.LeaveSession(context.Background(), "s1", "u"), ErrSessionNotFound)
}

func TestMembersRequiresMembership(t *testing.T) {
	svc, mock, _ := newTestService(t)
	expectSession(mock, "s1", "owner", false)
	mock.ExpectQuery("SELECT m.user_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "display_name", "color", "owner", "joined_at"}).
			AddRow("owner", "owner", "#000", true, time.Now()))

	_, err := svc.Members(context.Background(), "s1", "stranger")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCanJoin(t *testing.T) {
	svc, mock, _ := newTestService(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("s1", "u").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := svc.CanJoin(context.Background(), "s1", "u")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEndIdle(t *testing.T) {
	t.Run("ends an empty room", func(t *testing.T) {
		svc, mock, _ := newTestService(t)
		mock.ExpectExec("UPDATE collab_sessions SET ended_at").
			WithArgs("s1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		svc.EndIdle("s1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keeps a room someone reconnected to", func(t *testing.T) {
		svc, mock, rooms := newTestService(t)
		rooms.connected = 1

		svc.EndIdle("s1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
