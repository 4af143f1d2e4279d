// Package auth implements the demo-grade session auth: any non-empty
// name/email/password combination is accepted on first sight, the profile
// is persisted and later logins for the same email verify the password.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parley/internal/content"
	"parley/internal/models"
)

const DefaultTokenExpiry = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// ProfileStore persists user profiles keyed by email.
type ProfileStore interface {
	SaveProfile(user models.User, passwordHash string) error
	// LoadProfile returns models.ErrNotFound for unknown emails.
	LoadProfile(email string) (models.User, string, error)
}

type Config struct {
	TokenExpiry time.Duration
}

type Service struct {
	Config
	store ProfileStore
	// tokens maps live tokens to user ids with a sliding expiry.
	tokens geche.Geche[string, string]

	mu    sync.RWMutex
	users map[string]models.User

	now func() time.Time
}

func NewService(ctx context.Context, cfg Config, store ProfileStore) *Service {
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = DefaultTokenExpiry
	}
	return &Service{
		Config: cfg,
		store:  store,
		tokens: geche.NewMapTTLCache[string, string](ctx, cfg.TokenExpiry, time.Minute),
		users:  make(map[string]models.User),
		now:    time.Now,
	}
}

// Login validates the credentials, creating the profile on first login, and
// returns the user with a fresh session token.
func (s *Service) Login(name, email, password string) (models.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		return models.User{}, "", ErrInvalidCredentials
	}

	now := s.now()
	user, storedHash, err := s.store.LoadProfile(email)
	switch {
	case err == nil:
		if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) != nil {
			return models.User{}, "", ErrInvalidCredentials
		}
	case errors.Is(err, models.ErrNotFound):
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if hashErr != nil {
			return models.User{}, "", fmt.Errorf("failed to hash password: %w", hashErr)
		}
		storedHash = string(hash)
		user = models.User{
			ID:     uuid.NewString(),
			Name:   content.Sanitize(name),
			Email:  email,
			Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=" + email,
			Status: "Available",
		}
	default:
		return models.User{}, "", fmt.Errorf("failed to load profile: %w", err)
	}

	user.Online = true
	user.LastSeen = now
	if err := s.store.SaveProfile(user, storedHash); err != nil {
		return models.User{}, "", fmt.Errorf("failed to save profile: %w", err)
	}

	token, err := s.generateToken()
	if err != nil {
		return models.User{}, "", err
	}
	s.tokens.Set(token, user.ID)

	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()

	return user, token, nil
}

// UserForToken resolves a live session token to its user.
func (s *Service) UserForToken(token string) (models.User, error) {
	userID, err := s.tokens.Get(token)
	if err != nil {
		return models.User{}, ErrInvalidToken
	}
	s.mu.RLock()
	user, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return models.User{}, ErrInvalidToken
	}
	return user, nil
}

// Logoff invalidates the token and marks the profile offline. Returns the
// signed-off user so the caller can tear down the session.
func (s *Service) Logoff(token string) (models.User, error) {
	user, err := s.UserForToken(token)
	if err != nil {
		return models.User{}, err
	}
	_ = s.tokens.Del(token)

	user.Online = false
	user.LastSeen = s.now()

	s.mu.Lock()
	delete(s.users, user.ID)
	s.mu.Unlock()

	// Best effort: the hash is reloaded so the offline flag update does
	// not clobber it.
	if _, hash, loadErr := s.store.LoadProfile(user.Email); loadErr == nil {
		_ = s.store.SaveProfile(user, hash)
	}

	return user, nil
}

func (s *Service) generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
