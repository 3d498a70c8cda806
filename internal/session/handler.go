package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"satukanvas/internal/session/model"
	"satukanvas/internal/session/service"
	"satukanvas/middleware"
	"satukanvas/pkg/logger"
)

type SessionHandler struct {
	Service *service.SessionService
}

func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{Service: service}
}

func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	var req model.CreateSessionRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // An empty body starts a session on a fresh document.

	resp, err := h.Service.CreateSession(r.Context(), userID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create session: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	var req model.JoinSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	resp, err := h.Service.JoinSession(r.Context(), sessionID, userID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to join session %s: %v", sessionID, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	if err := h.Service.LeaveSession(r.Context(), sessionID, userID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to leave session %s: %v", sessionID, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Left session successfully"))
}

func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	if err := h.Service.EndSession(r.Context(), sessionID, userID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to end session %s: %v", sessionID, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Session ended successfully"))
}

func (h *SessionHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	members, err := h.Service.Members(r.Context(), sessionID, userID)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to get members of session %s: %v", sessionID, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrSessionEnded):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
