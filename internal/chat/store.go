// Package chat implements the chat session state machine: message
// send/deliver/read progression, unread counts and typing indicators with
// sliding expiry.
package chat

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/internal/clock"
	"parley/internal/content"
	"parley/internal/models"
)

const (
	DefaultDeliveryDelay = 1 * time.Second
	DefaultTypingTTL     = 3 * time.Second
)

type EventType string

const (
	EventMessageAppended EventType = "messageAppended"
	EventMessageStatus   EventType = "messageStatus"
	EventMessagesRead    EventType = "messagesRead"
	EventTypingChanged   EventType = "typingChanged"
	EventChatCreated     EventType = "chatCreated"
)

// Event describes a store mutation, delivered through the configured
// callback after the mutation (and its persistence) completed.
type Event struct {
	Type    EventType
	ChatID  string
	Message *models.Message
	Chat    *models.Chat
	Typing  []models.TypingIndicator
	// Delivered marks a sent->delivered transition on EventMessageStatus.
	Delivered bool
}

type Config struct {
	// User is the authenticated session owner. A zero-ID user makes every
	// mutating operation a no-op.
	User  models.User
	Clock clock.Clock

	DeliveryDelay time.Duration
	TypingTTL     time.Duration

	// Initial is the starting snapshot (loaded from storage or seeded).
	Initial models.ChatSnapshot

	// Persist durably writes the snapshot after each chat or message
	// mutation. Typing indicators never reach it. Nil disables persistence.
	Persist func(models.ChatSnapshot) error

	// EventCallback receives store events. Nil disables event delivery.
	EventCallback func(Event)
}

// Store owns the chat collection of one session. All methods are safe for
// concurrent use; timer callbacks take the same lock as operations, so every
// transition is atomic with respect to the others.
type Store struct {
	mux sync.RWMutex

	user          models.User
	clk           clock.Clock
	deliveryDelay time.Duration
	typingTTL     time.Duration
	persist       func(models.ChatSnapshot) error
	callback      func(Event)

	chats      []models.Chat
	messages   map[string][]models.Message
	activeChat string

	typing   map[typingKey]*typingState
	delivery map[string]clock.Timer

	closed bool
}

type typingKey struct {
	chatID string
	userID string
}

type typingState struct {
	indicator models.TypingIndicator
	timer     clock.Timer
	// gen makes a stale expiry fire a no-op: each StartTyping bumps it
	// and the timer callback only removes the indicator it was armed for.
	gen uint64
}

func New(cfg Config) *Store {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.DeliveryDelay <= 0 {
		cfg.DeliveryDelay = DefaultDeliveryDelay
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = DefaultTypingTTL
	}

	s := &Store{
		user:          cfg.User,
		clk:           cfg.Clock,
		deliveryDelay: cfg.DeliveryDelay,
		typingTTL:     cfg.TypingTTL,
		persist:       cfg.Persist,
		callback:      cfg.EventCallback,
		chats:         append([]models.Chat(nil), cfg.Initial.Chats...),
		messages:      make(map[string][]models.Message, len(cfg.Initial.Messages)),
		activeChat:    cfg.Initial.ActiveChat,
		typing:        make(map[typingKey]*typingState),
		delivery:      make(map[string]clock.Timer),
	}
	for chatID, msgs := range cfg.Initial.Messages {
		s.messages[chatID] = append([]models.Message(nil), msgs...)
	}
	return s
}

// SendMessage appends a message with status "sent" and schedules its
// delivery confirmation. Empty content (after trimming) and a missing
// authenticated user are silent no-ops.
func (s *Store) SendMessage(chatID, body string, msgType models.MessageType) {
	body = strings.TrimSpace(body)
	if body == "" || s.user.ID == "" {
		return
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	s.mux.Lock()
	i := s.findChat(chatID)
	if s.closed || i < 0 {
		s.mux.Unlock()
		return
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  s.user.ID,
		Content:   content.Sanitize(body),
		Type:      msgType,
		Timestamp: s.clk.Now(),
		Status:    models.MessageStatusSent,
	}
	s.messages[chatID] = append(s.messages[chatID], msg)

	last := msg
	s.chats[i].LastMessage = &last

	s.persistLocked()

	id, cid := msg.ID, chatID
	s.delivery[id] = s.clk.AfterFunc(s.deliveryDelay, func() {
		s.confirmDelivery(cid, id)
	})

	ev := Event{Type: EventMessageAppended, ChatID: chatID, Message: &msg}
	s.mux.Unlock()
	s.emit(ev)
}

// confirmDelivery flips a message from sent to delivered. The transition is
// monotonic: a message already read via chat activation stays read.
func (s *Store) confirmDelivery(chatID, msgID string) {
	s.mux.Lock()
	delete(s.delivery, msgID)
	if s.closed {
		s.mux.Unlock()
		return
	}

	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].ID != msgID {
			continue
		}
		if msgs[i].Status != models.MessageStatusSent {
			break
		}
		msgs[i].Status = models.MessageStatusDelivered
		s.persistLocked()
		msg := msgs[i]
		ev := Event{Type: EventMessageStatus, ChatID: chatID, Message: &msg, Delivered: true}
		s.mux.Unlock()
		s.emit(ev)
		return
	}
	s.mux.Unlock()
}

// SetActiveChat activates a chat: every message not authored by the session
// owner becomes read and the unread count resets. An empty id deactivates
// without touching messages.
func (s *Store) SetActiveChat(chatID string) {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return
	}
	s.activeChat = chatID
	if chatID == "" {
		s.mux.Unlock()
		return
	}

	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].SenderID != s.user.ID {
			msgs[i].Status = models.MessageStatusRead
		}
	}

	var ev Event
	ev.Type = EventMessagesRead
	ev.ChatID = chatID
	if i := s.findChat(chatID); i >= 0 {
		s.chats[i].UnreadCount = 0
		c := s.chats[i]
		ev.Chat = &c
	}
	s.persistLocked()
	s.mux.Unlock()
	s.emit(ev)
}

// CreateNewChat creates an empty chat with the session owner as the sole
// participant and prepends it to the chat list. It returns the new chat id,
// or ok=false without an authenticated user or a usable name.
func (s *Store) CreateNewChat(name string, chatType models.ChatType) (string, bool) {
	name = strings.TrimSpace(name)
	if s.user.ID == "" || content.ValidateChatName(name) != nil {
		return "", false
	}
	if chatType == "" {
		chatType = models.ChatTypeDirect
	}

	c := models.Chat{
		ID:           uuid.NewString(),
		Type:         chatType,
		Name:         content.Sanitize(name),
		Participants: []string{s.user.ID},
		CreatedAt:    s.clk.Now(),
	}
	if chatType == models.ChatTypeGroup {
		c.Avatar = "https://api.dicebear.com/7.x/identicon/svg?seed=" + c.ID
	}

	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return "", false
	}
	s.chats = append([]models.Chat{c}, s.chats...)
	s.messages[c.ID] = []models.Message{}
	s.persistLocked()
	cc := c
	ev := Event{Type: EventChatCreated, ChatID: c.ID, Chat: &cc}
	s.mux.Unlock()
	s.emit(ev)

	return c.ID, true
}

// StartTyping upserts the typing indicator for the session owner in the
// given chat. The expiry window restarts on every call: the indicator lives
// for the typing TTL measured from the latest call.
func (s *Store) StartTyping(chatID string) {
	if s.user.ID == "" {
		return
	}

	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return
	}

	key := typingKey{chatID: chatID, userID: s.user.ID}
	st := s.typing[key]
	if st == nil {
		st = &typingState{
			indicator: models.TypingIndicator{
				ChatID:   chatID,
				UserID:   s.user.ID,
				UserName: s.user.Name,
			},
		}
		s.typing[key] = st
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.gen++
	gen := st.gen
	st.timer = s.clk.AfterFunc(s.typingTTL, func() {
		s.expireTyping(key, gen)
	})

	ev := Event{Type: EventTypingChanged, ChatID: chatID, Typing: s.typingLocked(chatID)}
	s.mux.Unlock()
	s.emit(ev)
}

func (s *Store) expireTyping(key typingKey, gen uint64) {
	s.mux.Lock()
	st := s.typing[key]
	if st == nil || st.gen != gen {
		// A later StartTyping superseded this expiry.
		s.mux.Unlock()
		return
	}
	delete(s.typing, key)
	ev := Event{Type: EventTypingChanged, ChatID: key.chatID, Typing: s.typingLocked(key.chatID)}
	s.mux.Unlock()
	s.emit(ev)
}

// Chats returns a copy of the chat list in display order.
func (s *Store) Chats() []models.Chat {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]models.Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Messages returns a copy of a chat's message history in append order.
func (s *Store) Messages(chatID string) []models.Message {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]models.Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	return out
}

// Typing returns the live typing indicators for a chat.
func (s *Store) Typing(chatID string) []models.TypingIndicator {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.typingLocked(chatID)
}

func (s *Store) ActiveChat() string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.activeChat
}

// Close cancels all pending timers. Called on logout.
func (s *Store) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.delivery {
		t.Stop()
		delete(s.delivery, id)
	}
	for key, st := range s.typing {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(s.typing, key)
	}
}

func (s *Store) findChat(chatID string) int {
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}

func (s *Store) typingLocked(chatID string) []models.TypingIndicator {
	var out []models.TypingIndicator
	for _, st := range s.typing {
		if st.indicator.ChatID == chatID {
			out = append(out, st.indicator)
		}
	}
	return out
}

// persistLocked writes the full snapshot. Failures are logged and do not
// roll back the in-memory state.
func (s *Store) persistLocked() {
	if s.persist == nil {
		return
	}
	if err := s.persist(s.snapshotLocked()); err != nil {
		slog.Error("failed to persist chat state", "user_id", s.user.ID, "error", err)
	}
}

func (s *Store) snapshotLocked() models.ChatSnapshot {
	snap := models.ChatSnapshot{
		Chats:      make([]models.Chat, len(s.chats)),
		Messages:   make(map[string][]models.Message, len(s.messages)),
		ActiveChat: s.activeChat,
	}
	copy(snap.Chats, s.chats)
	for chatID, msgs := range s.messages {
		snap.Messages[chatID] = append([]models.Message(nil), msgs...)
	}
	return snap
}

func (s *Store) emit(ev Event) {
	if s.callback != nil {
		s.callback(ev)
	}
}
