// Package stubs provides the demo conversation set used when a session has
// no stored chat state yet.
package stubs

import (
	"time"

	"parley/internal/models"
)

type demoContact struct {
	id   string
	name string
	typ  models.ChatType
}

var demoContacts = []demoContact{
	{"demo1", "Sarah Wilson", models.ChatTypeDirect},
	{"demo2", "Team Alpha", models.ChatTypeGroup},
	{"demo3", "Mike Chen", models.ChatTypeDirect},
	{"demo4", "Family Group", models.ChatTypeGroup},
}

// Seed builds the initial chat snapshot for a fresh session.
func Seed(now time.Time, user models.User) models.ChatSnapshot {
	chats := make([]models.Chat, 0, len(demoContacts))
	for i, c := range demoContacts {
		unread := 0
		if i == 0 {
			unread = 2
		}
		chats = append(chats, models.Chat{
			ID:           c.id,
			Type:         c.typ,
			Name:         c.name,
			Participants: []string{user.ID, c.id},
			UnreadCount:  unread,
			Avatar:       "https://api.dicebear.com/7.x/avataaars/svg?seed=" + c.id,
			CreatedAt:    now.Add(-time.Duration(i) * 24 * time.Hour),
		})
	}

	messages := map[string][]models.Message{
		"demo1": {
			{
				ID:        "seed-msg1",
				ChatID:    "demo1",
				SenderID:  "demo1",
				Content:   "Hey! How are you doing?",
				Type:      models.MessageTypeText,
				Timestamp: now.Add(-time.Hour),
				Status:    models.MessageStatusRead,
			},
			{
				ID:        "seed-msg2",
				ChatID:    "demo1",
				SenderID:  user.ID,
				Content:   "I'm good! Just working on some new projects. How about you?",
				Type:      models.MessageTypeText,
				Timestamp: now.Add(-50 * time.Minute),
				Status:    models.MessageStatusRead,
			},
			{
				ID:        "seed-msg3",
				ChatID:    "demo1",
				SenderID:  "demo1",
				Content:   "That sounds exciting! Would love to hear more about it sometime.",
				Type:      models.MessageTypeText,
				Timestamp: now.Add(-30 * time.Minute),
				Status:    models.MessageStatusDelivered,
			},
		},
		"demo2": {
			{
				ID:        "seed-msg4",
				ChatID:    "demo2",
				SenderID:  "demo2",
				Content:   "Team meeting at 3 PM today. Don't forget!",
				Type:      models.MessageTypeText,
				Timestamp: now.Add(-2 * time.Hour),
				Status:    models.MessageStatusRead,
			},
		},
	}

	for i := range chats {
		if msgs := messages[chats[i].ID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			chats[i].LastMessage = &last
		}
	}

	return models.ChatSnapshot{
		Chats:    chats,
		Messages: messages,
	}
}

// Peer returns a demo user for the given chat, used to simulate the other
// side of a direct chat or an incoming call.
func Peer(chatID string, now time.Time) (models.User, bool) {
	for _, c := range demoContacts {
		if c.id == chatID {
			return models.User{
				ID:       c.id,
				Name:     c.name,
				Email:    c.id + "@parley.local",
				Avatar:   "https://api.dicebear.com/7.x/avataaars/svg?seed=" + c.id,
				Status:   "Available",
				LastSeen: now,
				Online:   true,
			}, true
		}
	}
	return models.User{}, false
}
