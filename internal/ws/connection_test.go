package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"parley/internal/models"
)

type mockWS struct {
	readCh      chan models.ClientMessage
	writeCh     chan any
	closeCh     chan struct{}
	closed      bool
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.ClientMessage, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	return nil
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case msg, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		if ptr, ok := v.(*models.ClientMessage); ok {
			*ptr = msg
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

type mockHub struct {
	attachCh   chan string
	detachCh   chan string
	dispatchCh chan models.ClientMessage
	attachErr  error
	// per user channel
	userChans map[string]chan models.ServerMessage
}

func newMockHub() *mockHub {
	return &mockHub{
		attachCh:   make(chan string, 10),
		detachCh:   make(chan string, 10),
		dispatchCh: make(chan models.ClientMessage, 10),
		userChans:  make(map[string]chan models.ServerMessage),
	}
}

func (m *mockHub) Attach(userID string) (<-chan models.ServerMessage, error) {
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	m.attachCh <- userID
	ch := make(chan models.ServerMessage, 10)
	m.userChans[userID] = ch
	return ch, nil
}

func (m *mockHub) Detach(userID string) {
	m.detachCh <- userID
}

func (m *mockHub) Dispatch(userID string, msg models.ClientMessage) {
	m.dispatchCh <- msg
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	userID := "user1"

	conn, err := NewConnection(hub, ws, userID)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	select {
	case id := <-hub.attachCh:
		if id != userID {
			t.Errorf("Expected Attach with %s, got %s", userID, id)
		}
	default:
		t.Error("Attach not called on NewConnection")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	// 1. Client -> hub
	clientMsg := models.ClientMessage{
		Type:    models.ClientMessageTypeSend,
		ChatID:  "chat1",
		Content: "hello",
	}
	ws.readCh <- clientMsg

	select {
	case received := <-hub.dispatchCh:
		if received.Content != clientMsg.Content {
			t.Errorf("Hub received wrong content: %v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Hub did not receive dispatched message")
	}

	// 2. Session -> client
	serverMsg := models.ServerMessage{
		Type:    models.ServerMessageTypeMessage,
		ChatID:  "chat1",
		Message: &models.Message{Content: "hi back"},
	}
	hub.userChans[userID] <- serverMsg

	select {
	case received := <-ws.writeCh:
		sMsg, ok := received.(models.ServerMessage)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if sMsg.Message == nil || sMsg.Message.Content != "hi back" {
			t.Errorf("WS received wrong content: %v", sMsg)
		}
	case <-time.After(1 * time.Second):
		t.Error("WS did not receive server message")
	}

	// 3. Stop
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after cancel")
	}

	select {
	case id := <-hub.detachCh:
		if id != userID {
			t.Errorf("Expected Detach with %s, got %s", userID, id)
		}
	default:
		t.Error("Detach not called")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_AttachError(t *testing.T) {
	hub := newMockHub()
	hub.attachErr = errors.New("no session")

	if _, err := NewConnection(hub, newMockWS(), "user1"); err == nil {
		t.Error("Expected error when Attach fails")
	}
}

func TestConnection_SupersededShutsDownCleanly(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	userID := "user1"

	conn, err := NewConnection(hub, ws, userID)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	// A newer attach closes the previous event channel.
	close(hub.userChans[userID])

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after event channel closed")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()

	conn, err := NewConnection(hub, ws, "user2")
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	ws.errToReturn = errors.New("read error")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error from Handle, got nil")
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return on error")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}
