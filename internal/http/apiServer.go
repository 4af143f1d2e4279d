package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"parley/internal/api"
	"parley/internal/auth"
	"parley/internal/filestore"
	"parley/internal/notify"
	"parley/internal/session"
	"parley/internal/storage"
	"parley/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(
	authService *auth.Service,
	sessions *session.Manager,
	blobs filestore.BlobStore,
	store *storage.BboltStorage,
	notifier *notify.Notifier,
	addr string,
	corsOrigins []string,
) *APIServer {
	wsServer := ws.NewServer(authService, sessions)
	handlers := api.New(authService, sessions, blobs, store, notifier)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "token"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", handlers.LoginHandler)
		r.Post("/logoff", handlers.LogoffHandler)
		r.Get("/me", handlers.RequireAuth(handlers.MeHandler))
		r.Get("/chats", handlers.RequireAuth(handlers.ChatsHandler))
		r.Get("/chats/{chatID}/messages", handlers.RequireAuth(handlers.MessagesHandler))
		r.Post("/uploads", handlers.RequireAuth(handlers.UploadHandler))
		r.Get("/uploads/{id}", handlers.RequireAuth(handlers.AttachmentHandler))
		r.Post("/push/subscriptions", handlers.RequireAuth(handlers.SubscribeHandler))
		r.Get("/devices", handlers.RequireAuth(handlers.DevicesHandler))
	})

	// WebSocket endpoint
	r.Get("/ws", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *APIServer) Start() error {
	slog.Info("server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
