package session

import (
	"path/filepath"
	"testing"
	"time"

	"parley/internal/clock"
	"parley/internal/models"
	"parley/internal/storage"
)

var testUser = models.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}

func newTestManager(t *testing.T) (*Manager, *clock.Fake, *storage.BboltStorage) {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewFake(time.Unix(1700000000, 0))
	m := NewManager(store, clk, nil, Config{})
	return m, clk, store
}

func collect(ch <-chan models.ServerMessage) []models.ServerMessage {
	var out []models.ServerMessage
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestManager_OpenSeedsDemoData(t *testing.T) {
	m, _, _ := newTestManager(t)

	s := m.Open(testUser)

	chats := s.Chat.Chats()
	if len(chats) != 4 {
		t.Fatalf("expected 4 seeded chats, got %d", len(chats))
	}
	if chats[0].UnreadCount != 2 {
		t.Errorf("first seeded chat should carry 2 unread, got %d", chats[0].UnreadCount)
	}
	if len(s.Chat.Messages("demo1")) != 3 {
		t.Errorf("expected 3 seeded messages in demo1")
	}
}

func TestManager_StateSurvivesReopen(t *testing.T) {
	m, clk, store := newTestManager(t)

	s := m.Open(testUser)
	s.Chat.SendMessage("demo1", "are we still on for tonight?", "")
	clk.Advance(time.Second)
	m.Close(testUser.ID)

	m2 := NewManager(store, clk, nil, Config{})
	s2 := m2.Open(testUser)

	msgs := s2.Chat.Messages("demo1")
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after reopen, got %d", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Content != "are we still on for tonight?" {
		t.Errorf("unexpected content %q", last.Content)
	}
	if last.Status != models.MessageStatusDelivered {
		t.Errorf("delivered status not persisted, got %s", last.Status)
	}
}

func TestManager_OpenIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)

	if m.Open(testUser) != m.Open(testUser) {
		t.Error("Open created a second session for the same user")
	}
}

func TestSession_DispatchAndEvents(t *testing.T) {
	t.Run("SendPushesMessageEvent", func(t *testing.T) {
		m, clk, _ := newTestManager(t)
		m.Open(testUser)

		ch, err := m.Attach(testUser.ID)
		if err != nil {
			t.Fatalf("Attach failed: %v", err)
		}

		m.Dispatch(testUser.ID, models.ClientMessage{
			Type:    models.ClientMessageTypeSend,
			ChatID:  "demo1",
			Content: "hello",
		})
		clk.Advance(time.Second)

		msgs := collect(ch)
		if len(msgs) != 2 {
			t.Fatalf("expected append + status events, got %d: %+v", len(msgs), msgs)
		}
		if msgs[0].Type != models.ServerMessageTypeMessage || msgs[0].Message.Status != models.MessageStatusSent {
			t.Errorf("unexpected first event: %+v", msgs[0])
		}
		if msgs[1].Type != models.ServerMessageTypeMessageStatus || msgs[1].Message.Status != models.MessageStatusDelivered {
			t.Errorf("unexpected second event: %+v", msgs[1])
		}
	})

	t.Run("CallLifecycle", func(t *testing.T) {
		m, clk, _ := newTestManager(t)
		s := m.Open(testUser)
		ch, _ := m.Attach(testUser.ID)

		// Simulated incoming call from the demo1 contact.
		m.Dispatch(testUser.ID, models.ClientMessage{
			Type:     models.ClientMessageTypeCallReceive,
			ChatID:   "demo1",
			CallType: models.CallTypeVideo,
		})
		if s.Call.State().Phase() != models.CallPhaseRinging {
			t.Fatal("expected ringing call")
		}

		m.Dispatch(testUser.ID, models.ClientMessage{Type: models.ClientMessageTypeCallAccept})
		if s.Call.State().Phase() != models.CallPhaseConnected {
			t.Fatal("expected connected call")
		}
		if s.Media.Stream() == nil {
			t.Error("connected call should hold a media stream")
		}

		m.Dispatch(testUser.ID, models.ClientMessage{Type: models.ClientMessageTypeCallEnd})
		if s.Call.State().Phase() != models.CallPhaseIdle {
			t.Fatal("expected idle after end")
		}
		if s.Media.Stream() != nil {
			t.Error("stream not released after end")
		}

		var sawEnd bool
		for _, msg := range collect(ch) {
			if msg.Type == models.ServerMessageTypeCallEnded && msg.EndReason == models.CallEndCompleted {
				sawEnd = true
			}
		}
		if !sawEnd {
			t.Error("missing callEnded event with completed reason")
		}
		_ = clk
	})

	t.Run("BusyCallPushedAsError", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		m.Open(testUser)
		ch, _ := m.Attach(testUser.ID)

		peer := models.User{ID: "u2", Name: "Bob"}
		m.Dispatch(testUser.ID, models.ClientMessage{
			Type: models.ClientMessageTypeCallInitiate, Peer: &peer, CallType: models.CallTypeAudio,
		})
		m.Dispatch(testUser.ID, models.ClientMessage{
			Type: models.ClientMessageTypeCallInitiate, Peer: &peer, CallType: models.CallTypeAudio,
		})

		var sawError bool
		for _, msg := range collect(ch) {
			if msg.Type == models.ServerMessageTypeError {
				sawError = true
			}
		}
		if !sawError {
			t.Error("second initiate should surface an error event")
		}
	})
}

func TestSession_AttachSupersedes(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.Open(testUser)

	ch1, _ := m.Attach(testUser.ID)
	ch2, _ := m.Attach(testUser.ID)

	if _, ok := <-ch1; ok {
		t.Error("first channel should be closed by the second attach")
	}

	m.Dispatch(testUser.ID, models.ClientMessage{
		Type: models.ClientMessageTypeTyping, ChatID: "demo1",
	})
	if len(collect(ch2)) == 0 {
		t.Error("second channel receives events")
	}
}

func TestManager_CloseStopsTimers(t *testing.T) {
	m, clk, store := newTestManager(t)
	s := m.Open(testUser)

	s.Chat.SendMessage("demo1", "bye", "")
	m.Close(testUser.ID)
	clk.Advance(5 * time.Second)

	snap, ok := store.LoadChatState(testUser.ID)
	if !ok {
		t.Fatal("snapshot missing")
	}
	msgs := snap.Messages["demo1"]
	if got := msgs[len(msgs)-1].Status; got != models.MessageStatusSent {
		t.Errorf("delivery timer ran after session close: %s", got)
	}

	if _, err := m.Attach(testUser.ID); err == nil {
		t.Error("attach to closed session should fail")
	}
}
