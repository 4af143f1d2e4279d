package session

import (
	"sync"
	"time"

	"parley/internal/call"
	"parley/internal/chat"
	"parley/internal/clock"
	"parley/internal/media"
	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/stubs"
)

// SnapshotStore is the persistence boundary a Manager needs: read the
// initial chat state, durably write it back.
type SnapshotStore interface {
	LoadChatState(userID string) (models.ChatSnapshot, bool)
	SaveChatState(userID string, snap models.ChatSnapshot) error
}

type Config struct {
	DeliveryDelay time.Duration
	TypingTTL     time.Duration
	ConnectDelay  time.Duration
	RingTimeout   time.Duration
}

// Manager is the session registry: one Session per signed-in user.
type Manager struct {
	mux      sync.RWMutex
	sessions map[string]*Session

	store    SnapshotStore
	clk      clock.Clock
	notifier *notify.Notifier
	cfg      Config
}

func NewManager(store SnapshotStore, clk clock.Clock, notifier *notify.Notifier, cfg Config) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		clk:      clk,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Open returns the live session for the user, creating it from the stored
// snapshot (or seed data) on first login.
func (m *Manager) Open(user models.User) *Session {
	m.mux.Lock()
	defer m.mux.Unlock()

	if s, ok := m.sessions[user.ID]; ok {
		return s
	}

	snap, ok := m.store.LoadChatState(user.ID)
	if !ok {
		snap = stubs.Seed(m.clk.Now(), user)
	}

	s := &Session{
		User:     user,
		notifier: m.notifier,
	}
	s.Chat = chat.New(chat.Config{
		User:          user,
		Clock:         m.clk,
		DeliveryDelay: m.cfg.DeliveryDelay,
		TypingTTL:     m.cfg.TypingTTL,
		Initial:       snap,
		Persist: func(snap models.ChatSnapshot) error {
			return m.store.SaveChatState(user.ID, snap)
		},
		EventCallback: s.handleChatEvent,
	})
	s.Call = call.New(call.Config{
		User:          user,
		Clock:         m.clk,
		ConnectDelay:  m.cfg.ConnectDelay,
		RingTimeout:   m.cfg.RingTimeout,
		StateCallback: s.handleCallState,
		EndCallback:   s.handleCallEnd,
	})
	s.Media = media.NewController(s.handleMediaError)

	m.sessions[user.ID] = s
	return s
}

// Get returns the live session for a user id.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close tears the user's session down: timers canceled, event stream
// closed, registry entry removed.
func (m *Manager) Close(userID string) {
	m.mux.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mux.Unlock()

	if ok {
		s.close()
	}
}

// Attach and the methods below let the websocket layer drive sessions by
// user id without holding a *Session.

func (m *Manager) Attach(userID string) (<-chan models.ServerMessage, error) {
	s, ok := m.Get(userID)
	if !ok {
		return nil, models.ErrNotFound
	}
	ch := s.Attach()
	if ch == nil {
		return nil, models.ErrNotFound
	}
	return ch, nil
}

func (m *Manager) Detach(userID string) {
	if s, ok := m.Get(userID); ok {
		s.Detach()
	}
}

func (m *Manager) Dispatch(userID string, msg models.ClientMessage) {
	if s, ok := m.Get(userID); ok {
		s.Dispatch(msg)
	}
}

// peerForChat resolves a demo contact for simulated incoming calls.
func peerForChat(chatID string) (models.User, bool) {
	return stubs.Peer(chatID, time.Now())
}
