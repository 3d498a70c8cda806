package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"satukanvas/internal/session/model"
	"satukanvas/internal/session/repository"
	"satukanvas/internal/session/service"
	"satukanvas/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*SessionHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.NewSessionService(repository.NewSessionRepository(db), nil)
	return NewSessionHandler(svc), mock
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}

func TestCreateSessionHandler(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectExec("INSERT INTO collab_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO session_members").WillReturnResult(sqlmock.NewResult(1, 1))

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/sessions/create", strings.NewReader(`{"documentId":"doc-1"}`)), "owner")
	rr := httptest.NewRecorder()
	h.CreateSession(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp model.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "owner", resp.OwnerID)
	assert.NotEmpty(t, resp.SessionID)
}

func TestSessionHandlerStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		setup  func(mock sqlmock.Sqlmock)
		call   func(h *SessionHandler) http.HandlerFunc
		status int
	}{
		{
			name:   "join wrong method",
			method: http.MethodGet,
			target: "/api/sessions/join?sessionId=s1",
			call:   func(h *SessionHandler) http.HandlerFunc { return h.JoinSession },
			status: http.StatusMethodNotAllowed,
		},
		{
			name:   "join missing id",
			method: http.MethodPost,
			target: "/api/sessions/join",
			call:   func(h *SessionHandler) http.HandlerFunc { return h.JoinSession },
			status: http.StatusBadRequest,
		},
		{
			name:   "join unknown session",
			method: http.MethodPost,
			target: "/api/sessions/join?sessionId=s1",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, document_id").WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			call:   func(h *SessionHandler) http.HandlerFunc { return h.JoinSession },
			status: http.StatusNotFound,
		},
		{
			name:   "end by non owner",
			method: http.MethodDelete,
			target: "/api/sessions/end?sessionId=s1",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, document_id").
					WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "owner_id", "created_at", "ended_at"}).
						AddRow("s1", "doc-1", "someone-else", time.Now(), nil))
			},
			call:   func(h *SessionHandler) http.HandlerFunc { return h.EndSession },
			status: http.StatusForbidden,
		},
		{
			name:   "end already ended",
			method: http.MethodDelete,
			target: "/api/sessions/end?sessionId=s1",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, document_id").
					WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "owner_id", "created_at", "ended_at"}).
						AddRow("s1", "doc-1", "user-1", time.Now(), time.Now()))
			},
			call:   func(h *SessionHandler) http.HandlerFunc { return h.EndSession },
			status: http.StatusGone,
		},
		{
			name:   "members database failure",
			method: http.MethodGet,
			target: "/api/sessions/members?sessionId=s1",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, document_id").WillReturnError(assert.AnError)
			},
			call:   func(h *SessionHandler) http.HandlerFunc { return h.GetMembers },
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mock := newTestHandler(t)
			if tt.setup != nil {
				tt.setup(mock)
			}
			req := asUser(httptest.NewRequest(tt.method, tt.target, nil), "user-1")
			rr := httptest.NewRecorder()

			tt.call(h)(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetMembersHandler(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, document_id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "owner_id", "created_at", "ended_at"}).
			AddRow("s1", "doc-1", "user-1", time.Now(), nil))
	mock.ExpectQuery("SELECT m.user_id").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "display_name", "color", "owner", "joined_at"}).
			AddRow("user-1", "Ann", "#000", true, time.Now()))

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/sessions/members?sessionId=s1", nil), "user-1")
	rr := httptest.NewRecorder()
	h.GetMembers(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var members []model.Member
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &members))
	require.Len(t, members, 1)
	assert.Equal(t, "Ann", members[0].DisplayName)
	assert.True(t, members[0].Owner)
}
