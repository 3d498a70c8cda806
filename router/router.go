package router

import (
	"database/sql"
	"net/http"

	sessionHandler "satukanvas/internal/session"
	"satukanvas/internal/session/repository"
	"satukanvas/internal/session/service"
	"satukanvas/middleware"
	"satukanvas/socket"
)

// Setup wires the session API and the websocket endpoint. It returns the
// session service so the caller can hook it to the hub.
func Setup(db *sql.DB, hub *socket.Hub, secret string) (http.Handler, *service.SessionService) {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(secret)

	sessionRepo := repository.NewSessionRepository(db)
	sessionService := service.NewSessionService(sessionRepo, hub)
	sessionHandler := sessionHandler.NewSessionHandler(sessionService)
	hub.SetAuthorizer(sessionService)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(middleware.UserIDKey).(string)
		socket.ServeWs(hub, w, r, userID)
	})
	mux.Handle("/ws", auth(wsHandler))

	// REST API
	mux.Handle("/api/sessions/create", auth(http.HandlerFunc(sessionHandler.CreateSession)))
	mux.Handle("/api/sessions/join", auth(http.HandlerFunc(sessionHandler.JoinSession)))
	mux.Handle("/api/sessions/leave", auth(http.HandlerFunc(sessionHandler.LeaveSession)))
	mux.Handle("/api/sessions/end", auth(http.HandlerFunc(sessionHandler.EndSession)))
	mux.Handle("/api/sessions/members", auth(http.HandlerFunc(sessionHandler.GetMembers)))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return middleware.CORSMiddleware(mux), sessionService
}
