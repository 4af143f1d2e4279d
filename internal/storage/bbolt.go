package storage

import (
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"parley/internal/models"
	"parley/internal/notify"
)

var (
	bucketProfiles      = []byte("profiles")
	bucketChatState     = []byte("chat_state")
	bucketAttachments   = []byte("attachments")
	bucketSubscriptions = []byte("push_subscriptions")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketProfiles); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketChatState); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketAttachments); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSubscriptions); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// SaveProfile stores a new or updated user profile keyed by email.
func (s *BboltStorage) SaveProfile(user models.User, passwordHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		p := &DBProfile{
			ID:           user.ID,
			Name:         user.Name,
			Email:        user.Email,
			Avatar:       user.Avatar,
			Status:       user.Status,
			LastSeen:     user.LastSeen.UnixMilli(),
			Online:       user.Online,
			PasswordHash: passwordHash,
		}
		data, err := p.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(p.Key(), data)
	})
}

// LoadProfile returns the stored profile and password hash for an email.
// A missing or malformed record yields models.ErrNotFound.
func (s *BboltStorage) LoadProfile(email string) (models.User, string, error) {
	var p DBProfile
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProfiles).Get([]byte(email))
		if data == nil {
			return models.ErrNotFound
		}
		if err := p.UnmarshalBinary(data); err != nil {
			slog.Debug("discarding malformed profile record", "email", email, "error", err)
			return models.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return models.User{}, "", err
	}
	return models.User{
		ID:       p.ID,
		Name:     p.Name,
		Email:    p.Email,
		Avatar:   p.Avatar,
		Status:   p.Status,
		LastSeen: time.UnixMilli(p.LastSeen),
		Online:   p.Online,
	}, p.PasswordHash, nil
}

// SaveChatState durably writes the whole chat snapshot of one user.
func (s *BboltStorage) SaveChatState(userID string, snap models.ChatSnapshot) error {
	state := &DBChatState{
		UserID:     userID,
		Chats:      make([]DBChat, 0, len(snap.Chats)),
		Messages:   make(map[string][]DBMessage, len(snap.Messages)),
		ActiveChat: snap.ActiveChat,
	}
	for _, c := range snap.Chats {
		state.Chats = append(state.Chats, toDBChat(c))
	}
	for chatID, msgs := range snap.Messages {
		dbMsgs := make([]DBMessage, 0, len(msgs))
		for _, m := range msgs {
			dbMsgs = append(dbMsgs, toDBMessage(m))
		}
		state.Messages[chatID] = dbMsgs
	}

	data, err := state.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal chat state: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChatState).Put(state.Key(), data)
	})
}

// LoadChatState returns the stored snapshot for a user. ok is false when no
// snapshot exists or the stored blob does not decode; callers fall back to
// seed data in that case.
func (s *BboltStorage) LoadChatState(userID string) (models.ChatSnapshot, bool) {
	var state DBChatState
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChatState).Get([]byte(userID))
		if data == nil {
			return nil
		}
		if err := state.UnmarshalBinary(data); err != nil {
			slog.Debug("discarding malformed chat state", "user_id", userID, "error", err)
			return nil
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return models.ChatSnapshot{}, false
	}

	snap := models.ChatSnapshot{
		Chats:      make([]models.Chat, 0, len(state.Chats)),
		Messages:   make(map[string][]models.Message, len(state.Messages)),
		ActiveChat: state.ActiveChat,
	}
	for _, c := range state.Chats {
		snap.Chats = append(snap.Chats, fromDBChat(c))
	}
	for chatID, msgs := range state.Messages {
		out := make([]models.Message, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, fromDBMessage(m))
		}
		snap.Messages[chatID] = out
	}
	return snap, true
}

// SaveAttachment stores upload metadata. Payload bytes live in the file
// store under the same hash id.
func (s *BboltStorage) SaveAttachment(att DBAttachment) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := att.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAttachments).Put(att.Key(), data)
	})
}

func (s *BboltStorage) GetAttachment(id string) (DBAttachment, error) {
	var att DBAttachment
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAttachments).Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		return att.UnmarshalBinary(data)
	})
	return att, err
}

func (s *BboltStorage) SaveSubscription(sub notify.Subscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec := &DBPushSubscription{
			UserID:   sub.UserID,
			Endpoint: sub.Endpoint,
			P256dh:   sub.P256dh,
			Auth:     sub.Auth,
		}
		data, err := rec.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSubscriptions).Put(rec.Key(), data)
	})
}

func (s *BboltStorage) ListSubscriptions(userID string) ([]notify.Subscription, error) {
	var subs []notify.Subscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).ForEach(func(k, v []byte) error {
			var rec DBPushSubscription
			if err := rec.UnmarshalBinary(v); err != nil {
				return err
			}
			if rec.UserID != userID {
				return nil
			}
			subs = append(subs, notify.Subscription{
				UserID:   rec.UserID,
				Endpoint: rec.Endpoint,
				P256dh:   rec.P256dh,
				Auth:     rec.Auth,
			})
			return nil
		})
	})
	return subs, err
}

func (s *BboltStorage) DeleteSubscription(endpoint string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).Delete([]byte(endpoint))
	})
}

func toDBMessage(m models.Message) DBMessage {
	return DBMessage{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      string(m.Type),
		Timestamp: m.Timestamp.UnixMilli(),
		Status:    string(m.Status),
		ReplyTo:   m.ReplyTo,
	}
}

func fromDBMessage(m DBMessage) models.Message {
	return models.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      models.MessageType(m.Type),
		Timestamp: time.UnixMilli(m.Timestamp),
		Status:    models.MessageStatus(m.Status),
		ReplyTo:   m.ReplyTo,
	}
}

func toDBChat(c models.Chat) DBChat {
	dbChat := DBChat{
		ID:           c.ID,
		Type:         string(c.Type),
		Name:         c.Name,
		Participants: c.Participants,
		UnreadCount:  c.UnreadCount,
		Avatar:       c.Avatar,
		CreatedAt:    c.CreatedAt.UnixMilli(),
	}
	if c.LastMessage != nil {
		last := toDBMessage(*c.LastMessage)
		dbChat.LastMessage = &last
	}
	return dbChat
}

func fromDBChat(c DBChat) models.Chat {
	chat := models.Chat{
		ID:           c.ID,
		Type:         models.ChatType(c.Type),
		Name:         c.Name,
		Participants: c.Participants,
		UnreadCount:  c.UnreadCount,
		Avatar:       c.Avatar,
		CreatedAt:    time.UnixMilli(c.CreatedAt),
	}
	if c.LastMessage != nil {
		last := fromDBMessage(*c.LastMessage)
		chat.LastMessage = &last
	}
	return chat
}
