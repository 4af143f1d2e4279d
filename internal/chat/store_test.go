package chat

import (
	"sync"
	"testing"
	"time"

	"parley/internal/clock"
	"parley/internal/models"
)

var testUser = models.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *clock.Fake, *eventRecorder, *int) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1700000000, 0))
	rec := &eventRecorder{}
	saves := 0
	s := New(Config{
		User:  testUser,
		Clock: clk,
		Initial: models.ChatSnapshot{
			Chats: []models.Chat{
				{ID: "c1", Type: models.ChatTypeDirect, Name: "Bob", Participants: []string{"u1", "u2"}},
			},
			Messages: map[string][]models.Message{"c1": {}},
		},
		Persist: func(models.ChatSnapshot) error {
			saves++
			return nil
		},
		EventCallback: rec.record,
	})
	return s, clk, rec, &saves
}

func TestStore_SendMessage(t *testing.T) {
	t.Run("AppendsWithStatusSent", func(t *testing.T) {
		s, _, _, saves := newTestStore(t)

		s.SendMessage("c1", "hello", "")

		msgs := s.Messages("c1")
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}
		if msgs[0].Status != models.MessageStatusSent {
			t.Errorf("expected status sent, got %s", msgs[0].Status)
		}
		if msgs[0].Type != models.MessageTypeText {
			t.Errorf("expected default type text, got %s", msgs[0].Type)
		}
		if msgs[0].SenderID != testUser.ID {
			t.Errorf("wrong sender %s", msgs[0].SenderID)
		}
		if *saves != 1 {
			t.Errorf("expected 1 snapshot write after append, got %d", *saves)
		}
	})

	t.Run("UpdatesLastMessage", func(t *testing.T) {
		s, _, _, _ := newTestStore(t)

		s.SendMessage("c1", "hello", "")

		chats := s.Chats()
		if chats[0].LastMessage == nil {
			t.Fatal("lastMessage not set")
		}
		if chats[0].LastMessage.Content != "hello" {
			t.Errorf("lastMessage content = %q", chats[0].LastMessage.Content)
		}
	})

	t.Run("DeliveredAfterDelayAndNotEarlier", func(t *testing.T) {
		s, clk, rec, saves := newTestStore(t)

		s.SendMessage("c1", "hello", "")

		clk.Advance(999 * time.Millisecond)
		if got := s.Messages("c1")[0].Status; got != models.MessageStatusSent {
			t.Errorf("status flipped too early: %s", got)
		}

		clk.Advance(1 * time.Millisecond)
		if got := s.Messages("c1")[0].Status; got != models.MessageStatusDelivered {
			t.Errorf("expected delivered after 1s, got %s", got)
		}
		if *saves != 2 {
			t.Errorf("expected a second snapshot write after delivery, got %d", *saves)
		}
		if evs := rec.ofType(EventMessageStatus); len(evs) != 1 || !evs[0].Delivered {
			t.Errorf("expected one delivered status event, got %+v", evs)
		}
	})

	t.Run("EmptyContentIsNoop", func(t *testing.T) {
		s, _, _, saves := newTestStore(t)

		s.SendMessage("c1", "   ", "")
		s.SendMessage("c1", "", "")

		if len(s.Messages("c1")) != 0 {
			t.Error("empty content appended a message")
		}
		if *saves != 0 {
			t.Error("no-op send persisted")
		}
	})

	t.Run("NoUserIsNoop", func(t *testing.T) {
		clk := clock.NewFake(time.Unix(1700000000, 0))
		s := New(Config{
			Clock: clk,
			Initial: models.ChatSnapshot{
				Chats:    []models.Chat{{ID: "c1"}},
				Messages: map[string][]models.Message{},
			},
		})

		s.SendMessage("c1", "hello", "")

		if len(s.Messages("c1")) != 0 {
			t.Error("unauthenticated send appended a message")
		}
	})

	t.Run("UnknownChatIsNoop", func(t *testing.T) {
		s, _, _, _ := newTestStore(t)

		s.SendMessage("nope", "hello", "")

		if len(s.Messages("nope")) != 0 {
			t.Error("send to unknown chat appended a message")
		}
	})

	t.Run("SanitizesContent", func(t *testing.T) {
		s, _, _, _ := newTestStore(t)

		s.SendMessage("c1", "<script>alert(1)</script>hi", "")

		if got := s.Messages("c1")[0].Content; got != "hi" {
			t.Errorf("content not sanitized: %q", got)
		}
	})
}

func TestStore_SetActiveChat(t *testing.T) {
	t.Run("MarksPeerMessagesRead", func(t *testing.T) {
		clk := clock.NewFake(time.Unix(1700000000, 0))
		s := New(Config{
			User:  testUser,
			Clock: clk,
			Initial: models.ChatSnapshot{
				Chats: []models.Chat{{ID: "c1", UnreadCount: 2}},
				Messages: map[string][]models.Message{"c1": {
					{ID: "m1", ChatID: "c1", SenderID: "u2", Status: models.MessageStatusDelivered},
					{ID: "m2", ChatID: "c1", SenderID: "u1", Status: models.MessageStatusSent},
					{ID: "m3", ChatID: "c1", SenderID: "u2", Status: models.MessageStatusRead},
				}},
			},
		})

		s.SetActiveChat("c1")

		msgs := s.Messages("c1")
		if msgs[0].Status != models.MessageStatusRead {
			t.Error("peer message not flipped to read")
		}
		if msgs[1].Status != models.MessageStatusSent {
			t.Error("own message must not be marked read by own activation")
		}
		if msgs[2].Status != models.MessageStatusRead {
			t.Error("already-read message changed")
		}
		if s.Chats()[0].UnreadCount != 0 {
			t.Error("unread count not reset")
		}
		if s.ActiveChat() != "c1" {
			t.Error("active chat not set")
		}
	})

	t.Run("DeactivateHasNoMessageSideEffects", func(t *testing.T) {
		s, _, _, saves := newTestStore(t)
		s.SendMessage("c1", "hello", "")
		before := *saves

		s.SetActiveChat("")

		if s.ActiveChat() != "" {
			t.Error("active chat not cleared")
		}
		if *saves != before {
			t.Error("deactivation persisted a snapshot")
		}
	})

	t.Run("ActivationPreemptsDeliveryForPeerMessages", func(t *testing.T) {
		clk := clock.NewFake(time.Unix(1700000000, 0))
		s := New(Config{
			User:  models.User{ID: "u2", Name: "Bob"},
			Clock: clk,
			Initial: models.ChatSnapshot{
				Chats:    []models.Chat{{ID: "c1"}},
				Messages: map[string][]models.Message{"c1": {}},
			},
		})

		// u2 receives a freshly sent message from u1 in its snapshot view.
		s.mux.Lock()
		s.messages["c1"] = append(s.messages["c1"], models.Message{
			ID: "m1", ChatID: "c1", SenderID: "u1", Status: models.MessageStatusSent,
		})
		s.mux.Unlock()

		s.SetActiveChat("c1")
		if got := s.Messages("c1")[0].Status; got != models.MessageStatusRead {
			t.Fatalf("expected read, got %s", got)
		}

		// Status must never regress.
		clk.Advance(2 * time.Second)
		if got := s.Messages("c1")[0].Status; got != models.MessageStatusRead {
			t.Errorf("status regressed to %s", got)
		}
	})
}

func TestStore_CreateNewChat(t *testing.T) {
	t.Run("CreatesAndPrepends", func(t *testing.T) {
		s, _, rec, _ := newTestStore(t)

		id, ok := s.CreateNewChat("Team Beta", models.ChatTypeGroup)
		if !ok || id == "" {
			t.Fatal("expected chat creation to succeed")
		}

		chats := s.Chats()
		if chats[0].ID != id {
			t.Error("new chat not prepended")
		}
		if chats[0].UnreadCount != 0 {
			t.Error("new chat should start with zero unread")
		}
		if len(chats[0].Participants) != 1 || chats[0].Participants[0] != testUser.ID {
			t.Errorf("creator should be sole participant, got %v", chats[0].Participants)
		}
		if msgs := s.Messages(id); len(msgs) != 0 {
			t.Error("new chat should have an empty message sequence")
		}
		if len(rec.ofType(EventChatCreated)) != 1 {
			t.Error("missing chatCreated event")
		}
	})

	t.Run("RejectsEmptyName", func(t *testing.T) {
		s, _, _, _ := newTestStore(t)

		if _, ok := s.CreateNewChat("  ", models.ChatTypeGroup); ok {
			t.Error("empty group name accepted")
		}
		if _, ok := s.CreateNewChat("", models.ChatTypeDirect); ok {
			t.Error("empty direct name accepted")
		}
		if _, ok := s.CreateNewChat("Bob 2", models.ChatTypeDirect); !ok {
			t.Error("non-empty direct name rejected")
		}
	})

	t.Run("RejectsWithoutUser", func(t *testing.T) {
		s := New(Config{Clock: clock.NewFake(time.Unix(1700000000, 0))})
		if _, ok := s.CreateNewChat("Team", models.ChatTypeGroup); ok {
			t.Error("chat created without authenticated user")
		}
	})
}

func TestStore_StartTyping(t *testing.T) {
	t.Run("SingleIndicatorPerUser", func(t *testing.T) {
		s, clk, _, _ := newTestStore(t)

		s.StartTyping("c1")
		clk.Advance(1 * time.Second)
		s.StartTyping("c1")

		if got := len(s.Typing("c1")); got != 1 {
			t.Errorf("expected exactly 1 indicator, got %d", got)
		}
	})

	t.Run("ExpiresFromLastCall", func(t *testing.T) {
		s, clk, _, _ := newTestStore(t)

		s.StartTyping("c1")
		clk.Advance(2 * time.Second)
		s.StartTyping("c1")

		// 3s after the first call, 1s after the second: still present.
		clk.Advance(1 * time.Second)
		if len(s.Typing("c1")) != 1 {
			t.Fatal("indicator expired from the first call, not the last")
		}

		// 3s after the second call: gone.
		clk.Advance(2 * time.Second)
		if len(s.Typing("c1")) != 0 {
			t.Error("indicator did not expire")
		}
	})

	t.Run("NeverPersisted", func(t *testing.T) {
		s, clk, _, saves := newTestStore(t)

		s.StartTyping("c1")
		clk.Advance(4 * time.Second)

		if *saves != 0 {
			t.Error("typing indicator lifecycle wrote a snapshot")
		}
	})

	t.Run("NoUserIsNoop", func(t *testing.T) {
		s := New(Config{Clock: clock.NewFake(time.Unix(1700000000, 0))})
		s.StartTyping("c1")
		if len(s.Typing("c1")) != 0 {
			t.Error("unauthenticated typing recorded")
		}
	})
}

func TestStore_DeliveryReadScenario(t *testing.T) {
	// Full lifecycle: send -> delivered after 1s -> read on activation by
	// the recipient, while the sender's own activation never flips it.
	s, clk, _, _ := newTestStore(t)

	s.SendMessage("c1", "hello", "")
	if got := s.Messages("c1")[0].Status; got != models.MessageStatusSent {
		t.Fatalf("expected sent, got %s", got)
	}

	clk.Advance(1 * time.Second)
	if got := s.Messages("c1")[0].Status; got != models.MessageStatusDelivered {
		t.Fatalf("expected delivered, got %s", got)
	}

	// Sender opens the chat: own message stays delivered.
	s.SetActiveChat("c1")
	if got := s.Messages("c1")[0].Status; got != models.MessageStatusDelivered {
		t.Errorf("sender activation flipped own message to %s", got)
	}
}

func TestStore_Close(t *testing.T) {
	s, clk, _, saves := newTestStore(t)

	s.SendMessage("c1", "hello", "")
	s.StartTyping("c1")
	before := *saves
	s.Close()

	clk.Advance(5 * time.Second)

	if got := s.Messages("c1")[0].Status; got != models.MessageStatusSent {
		t.Errorf("delivery timer fired after Close: %s", got)
	}
	if *saves != before {
		t.Error("snapshot written after Close")
	}

	// Operations after Close are no-ops.
	s.SendMessage("c1", "again", "")
	if len(s.Messages("c1")) != 1 {
		t.Error("message appended after Close")
	}
}
