package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBProfile is the stored user profile, keyed by email.
type DBProfile struct {
	ID           string `msgpack:"id"`
	Name         string `msgpack:"name"`
	Email        string `msgpack:"email"`
	Avatar       string `msgpack:"avatar"`
	Status       string `msgpack:"status"`
	LastSeen     int64  `msgpack:"lastSeen"`
	Online       bool   `msgpack:"online"`
	PasswordHash string `msgpack:"passwordHash"`
}

func (p *DBProfile) Key() []byte {
	return []byte(p.Email)
}

func (p *DBProfile) MarshalBinary() (data []byte, err error) {
	type alias DBProfile
	return msgpack.Marshal((*alias)(p))
}

func (p *DBProfile) UnmarshalBinary(data []byte) error {
	type alias DBProfile
	return msgpack.Unmarshal(data, (*alias)(p))
}

type DBMessage struct {
	ID        string `msgpack:"id"`
	ChatID    string `msgpack:"chatId"`
	SenderID  string `msgpack:"senderId"`
	Content   string `msgpack:"content"`
	Type      string `msgpack:"type"`
	Timestamp int64  `msgpack:"timestamp"` // Unix milliseconds
	Status    string `msgpack:"status"`
	ReplyTo   string `msgpack:"replyTo"`
}

type DBChat struct {
	ID           string     `msgpack:"id"`
	Type         string     `msgpack:"type"`
	Name         string     `msgpack:"name"`
	Participants []string   `msgpack:"participants"`
	LastMessage  *DBMessage `msgpack:"lastMessage"`
	UnreadCount  int        `msgpack:"unreadCount"`
	Avatar       string     `msgpack:"avatar"`
	CreatedAt    int64      `msgpack:"createdAt"` // Unix milliseconds
}

// DBChatState is the whole chat snapshot of one user, stored as a single
// blob keyed by user id.
type DBChatState struct {
	UserID     string                 `msgpack:"userId"`
	Chats      []DBChat               `msgpack:"chats"`
	Messages   map[string][]DBMessage `msgpack:"messages"`
	ActiveChat string                 `msgpack:"activeChat"`
}

func (s *DBChatState) Key() []byte {
	return []byte(s.UserID)
}

func (s *DBChatState) MarshalBinary() (data []byte, err error) {
	type alias DBChatState
	return msgpack.Marshal((*alias)(s))
}

func (s *DBChatState) UnmarshalBinary(data []byte) error {
	type alias DBChatState
	return msgpack.Unmarshal(data, (*alias)(s))
}

// DBAttachment is upload metadata; payload bytes live in the file store,
// addressed by the same hash id.
type DBAttachment struct {
	ID          string `msgpack:"id"`
	Name        string `msgpack:"name"`
	MimeType    string `msgpack:"mimeType"`
	MessageType string `msgpack:"messageType"`
	Size        int64  `msgpack:"size"`
}

func (a *DBAttachment) Key() []byte {
	return []byte(a.ID)
}

func (a *DBAttachment) MarshalBinary() (data []byte, err error) {
	type alias DBAttachment
	return msgpack.Marshal((*alias)(a))
}

func (a *DBAttachment) UnmarshalBinary(data []byte) error {
	type alias DBAttachment
	return msgpack.Unmarshal(data, (*alias)(a))
}

type DBPushSubscription struct {
	UserID   string `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	P256dh   string `msgpack:"p256dh"`
	Auth     string `msgpack:"auth"`
}

func (s *DBPushSubscription) Key() []byte {
	return []byte(s.Endpoint)
}

func (s *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(s))
}

func (s *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(s))
}
