package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrCallBusy = errors.New("call already in progress")
)

// User represents a signed-in user or a chat peer.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Avatar   string    `json:"avatar,omitempty"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
	Online   bool      `json:"isOnline"`
}

type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

// Chat represents a conversation thread (direct or group).
type Chat struct {
	ID           string   `json:"id"`
	Type         ChatType `json:"type"`
	Name         string   `json:"name,omitempty"`
	Participants []string `json:"participants"`
	// LastMessage mirrors the most recently appended message, as it was
	// at append time. Absent until the first message is sent.
	LastMessage *Message  `json:"lastMessage,omitempty"`
	UnreadCount int       `json:"unreadCount"`
	Avatar      string    `json:"avatar,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

type MessageStatus string

// Message delivery status is monotonic: sent -> delivered -> read.
const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Message represents a chat message.
type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chatId"`
	SenderID  string        `json:"senderId"`
	Content   string        `json:"content"`
	Type      MessageType   `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Status    MessageStatus `json:"status"`
	ReplyTo   string        `json:"replyTo,omitempty"`
}

// TypingIndicator is an ephemeral per-user-per-chat presence signal.
// Indicators are never persisted.
type TypingIndicator struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ChatSnapshot is the durable state of a chat session: the chat list, the
// per-chat message history and the active chat. Typing indicators are
// deliberately excluded.
type ChatSnapshot struct {
	Chats      []Chat               `json:"chats"`
	Messages   map[string][]Message `json:"messages"`
	ActiveChat string               `json:"activeChat,omitempty"`
}

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

type CallPhase string

const (
	CallPhaseIdle      CallPhase = "idle"
	CallPhaseDialing   CallPhase = "dialing"
	CallPhaseRinging   CallPhase = "ringing"
	CallPhaseConnected CallPhase = "connected"
)

type CallEndReason string

const (
	CallEndCompleted CallEndReason = "completed"
	CallEndRejected  CallEndReason = "rejected"
	CallEndMissed    CallEndReason = "missed"
	CallEndCanceled  CallEndReason = "canceled"
)

// CallState describes the single active call of a session. The zero value
// is the idle state. Exactly one of Caller/Recipient is set depending on
// call direction.
type CallState struct {
	InCall       bool      `json:"isInCall"`
	CallType     CallType  `json:"callType,omitempty"`
	Incoming     bool      `json:"isIncoming"`
	Caller       *User     `json:"caller,omitempty"`
	Recipient    *User     `json:"recipient,omitempty"`
	Connected    bool      `json:"isConnected"`
	Muted        bool      `json:"isMuted"`
	VideoEnabled bool      `json:"isVideoEnabled"`
	StartedAt    time.Time `json:"callStartTime,omitzero"`
}

// Phase derives the call phase from the state fields. The four phases are
// mutually exclusive.
func (s CallState) Phase() CallPhase {
	switch {
	case !s.InCall:
		return CallPhaseIdle
	case s.Connected:
		return CallPhaseConnected
	case s.Incoming:
		return CallPhaseRinging
	default:
		return CallPhaseDialing
	}
}
