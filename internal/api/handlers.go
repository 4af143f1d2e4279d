package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"parley/internal/auth"
	"parley/internal/content"
	"parley/internal/filestore"
	"parley/internal/media"
	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/session"
	"parley/internal/storage"
)

const maxUploadSize = 10 << 20

type ctxKey int

const userKey ctxKey = 0

type API struct {
	auth     *auth.Service
	sessions *session.Manager
	blobs    filestore.BlobStore
	storage  *storage.BboltStorage
	notifier *notify.Notifier
}

func New(
	auth *auth.Service,
	sessions *session.Manager,
	blobs filestore.BlobStore,
	storage *storage.BboltStorage,
	notifier *notify.Notifier,
) *API {
	return &API{
		auth:     auth,
		sessions: sessions,
		blobs:    blobs,
		storage:  storage,
		notifier: notifier,
	}
}

type loginResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Token   string       `json:"token,omitempty"`
	User    *models.User `json:"user,omitempty"`
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	// Support both JSON and form bodies.
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Name = r.FormValue("name")
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
	}

	user, token, err := a.auth.Login(req.Name, req.Email, req.Password)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, loginResponse{Success: false, Message: "invalid credentials"})
		return
	}

	// Login materializes the session so timers run even before the
	// websocket attaches.
	a.sessions.Open(user)

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Now().Add(a.auth.TokenExpiry),
	})

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, loginResponse{Success: true, Token: token, User: &user})
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := getToken(r); token != "" {
		if user, err := a.auth.Logoff(token); err == nil {
			a.sessions.Close(user.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

// RequireAuth resolves the session token and stores the user in the request
// context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.auth.UserForToken(getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

func requestUser(r *http.Request) models.User {
	user, _ := r.Context().Value(userKey).(models.User)
	return user
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, user)
}

func (a *API) ChatsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := a.sessions.Get(requestUser(r).ID)
	if !ok {
		http.Error(w, "No session", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.Chat.Chats())
}

type renderedMessage struct {
	models.Message
	HTML string `json:"html"`
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := a.sessions.Get(requestUser(r).ID)
	if !ok {
		http.Error(w, "No session", http.StatusNotFound)
		return
	}

	msgs := s.Chat.Messages(chi.URLParam(r, "chatID"))
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Query().Get("render") != "html" {
		writeJSON(w, msgs)
		return
	}

	rendered := make([]renderedMessage, 0, len(msgs))
	for _, m := range msgs {
		html, err := content.RenderMarkdown(m.Content)
		if err != nil {
			http.Error(w, "Failed to render message", http.StatusInternalServerError)
			return
		}
		rendered = append(rendered, renderedMessage{Message: m, HTML: string(html)})
	}
	writeJSON(w, rendered)
}

type uploadResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	MimeType    string             `json:"mimeType"`
	MessageType models.MessageType `json:"messageType"`
	Size        int64              `json:"size"`
	URL         string             `json:"url"`
}

func (a *API) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "Empty file", http.StatusBadRequest)
		return
	}

	msgType, mimeType := media.DetectAttachmentType(data)

	id, err := a.blobs.Put(data)
	if err != nil {
		slog.Error("failed to store upload", "error", err)
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	att := storage.DBAttachment{
		ID:          id,
		Name:        header.Filename,
		MimeType:    mimeType,
		MessageType: string(msgType),
		Size:        int64(len(data)),
	}
	if err := a.storage.SaveAttachment(att); err != nil {
		slog.Error("failed to save attachment metadata", "error", err)
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, uploadResponse{
		ID:          att.ID,
		Name:        att.Name,
		MimeType:    att.MimeType,
		MessageType: msgType,
		Size:        att.Size,
		URL:         "/api/uploads/" + att.ID,
	})
}

func (a *API) AttachmentHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	att, err := a.storage.GetAttachment(id)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	data, err := a.blobs.Get(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to read attachment", "id", id, "error", err)
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", att.MimeType)
	w.Header().Set("Content-Disposition", `inline; filename="`+att.Name+`"`)
	if _, err := w.Write(data); err != nil {
		slog.Debug("failed to write attachment response", "id", id, "error", err)
	}
}

func (a *API) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid subscription", http.StatusBadRequest)
		return
	}

	if a.notifier == nil || !a.notifier.Enabled() {
		http.Error(w, "Push notifications disabled", http.StatusServiceUnavailable)
		return
	}

	err := a.notifier.Subscribe(notify.Subscription{
		UserID:   requestUser(r).ID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		slog.Error("failed to save push subscription", "error", err)
		http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (a *API) DevicesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, media.Devices())
}

func getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}
