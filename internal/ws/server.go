package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"parley/internal/models"
)

type tokenAuth interface {
	UserForToken(token string) (models.User, error)
}

// Server upgrades authenticated HTTP requests to websocket connections
// bound to the caller's session.
type Server struct {
	auth     tokenAuth
	hub      sessionHub
	upgrader *websocket.Upgrader
}

func NewServer(auth tokenAuth, hub sessionHub) *Server {
	return &Server{
		auth: auth,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // same-origin is enforced by the API layer
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.UserForToken(tokenFromRequest(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "user_id", user.ID, "error", err)
		return
	}

	c, err := NewConnection(s.hub, conn, user.ID)
	if err != nil {
		slog.Error("no session for websocket", "user_id", user.ID, "error", err)
		_ = conn.Close()
		return
	}

	if err := c.Handle(r.Context()); err != nil {
		slog.Debug("websocket connection closed", "user_id", user.ID, "error", err)
	}
}

func tokenFromRequest(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}
