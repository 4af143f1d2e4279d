// Package session ties one signed-in user to their chat store, call session
// and media controller. Sessions are created at login and torn down at
// logout; there is no ambient shared state.
package session

import (
	"sync"

	"parley/internal/call"
	"parley/internal/chat"
	"parley/internal/media"
	"parley/internal/models"
	"parley/internal/notify"
)

// Session owns the state machines of one signed-in user.
type Session struct {
	User  models.User
	Chat  *chat.Store
	Call  *call.Session
	Media *media.Controller

	notifier *notify.Notifier

	mux      sync.Mutex
	events   chan models.ServerMessage
	attached bool
	closed   bool
}

// Attach binds a client to the session's event stream. A second attach
// supersedes the first: the previous channel is closed so its connection
// shuts down (one socket per session).
func (s *Session) Attach() <-chan models.ServerMessage {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return nil
	}
	if s.events != nil {
		close(s.events)
	}
	s.events = make(chan models.ServerMessage, 100)
	s.attached = true
	return s.events
}

// Detach unbinds the client without tearing the session down; timers and
// state keep running and push notifications take over.
func (s *Session) Detach() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed || s.events == nil {
		return
	}
	close(s.events)
	s.events = nil
	s.attached = false
}

// Dispatch maps a client operation onto the session's state machines.
// Unknown operations and call-setup failures are answered with an error
// message on the event stream.
func (s *Session) Dispatch(msg models.ClientMessage) {
	switch msg.Type {
	case models.ClientMessageTypeSend:
		s.Chat.SendMessage(msg.ChatID, msg.Content, msg.MessageType)

	case models.ClientMessageTypeTyping:
		s.Chat.StartTyping(msg.ChatID)

	case models.ClientMessageTypeActivate:
		s.Chat.SetActiveChat(msg.ChatID)

	case models.ClientMessageTypeCreateChat:
		if _, ok := s.Chat.CreateNewChat(msg.ChatName, msg.ChatType); !ok {
			s.pushError("chat name is not usable")
		}

	case models.ClientMessageTypeCallInitiate:
		if msg.Peer == nil {
			s.pushError("call requires a peer")
			return
		}
		if err := s.Call.InitiateCall(*msg.Peer, msg.CallType); err != nil {
			s.pushError(err.Error())
		}

	case models.ClientMessageTypeCallReceive:
		peer, ok := s.callPeer(msg)
		if !ok {
			s.pushError("call requires a peer")
			return
		}
		if err := s.Call.ReceiveCall(peer, msg.CallType); err != nil {
			s.pushError(err.Error())
		}

	case models.ClientMessageTypeCallAccept:
		s.Call.AcceptCall()
	case models.ClientMessageTypeCallReject:
		s.Call.RejectCall()
	case models.ClientMessageTypeCallEnd:
		s.Call.EndCall()
	case models.ClientMessageTypeCallMute:
		s.Call.ToggleMute()
	case models.ClientMessageTypeCallVideo:
		s.Call.ToggleVideo()

	default:
		s.pushError("unknown operation")
	}
}

func (s *Session) handleChatEvent(ev chat.Event) {
	switch ev.Type {
	case chat.EventMessageAppended:
		s.push(models.ServerMessage{Type: models.ServerMessageTypeMessage, ChatID: ev.ChatID, Message: ev.Message})

	case chat.EventMessageStatus:
		s.push(models.ServerMessage{Type: models.ServerMessageTypeMessageStatus, ChatID: ev.ChatID, Message: ev.Message})
		if ev.Delivered && !s.isAttached() && s.notifier != nil {
			s.notifier.MessageDelivered(s.User.ID, *ev.Message)
		}

	case chat.EventMessagesRead:
		s.push(models.ServerMessage{Type: models.ServerMessageTypeMessagesRead, ChatID: ev.ChatID, Chat: ev.Chat})

	case chat.EventTypingChanged:
		s.push(models.ServerMessage{Type: models.ServerMessageTypeTyping, ChatID: ev.ChatID, Typing: ev.Typing})

	case chat.EventChatCreated:
		s.push(models.ServerMessage{Type: models.ServerMessageTypeChat, ChatID: ev.ChatID, Chat: ev.Chat})
	}
}

func (s *Session) handleCallState(st models.CallState) {
	s.Media.SyncCallState(st)
	stc := st
	s.push(models.ServerMessage{Type: models.ServerMessageTypeCallState, CallState: &stc})

	if st.Phase() == models.CallPhaseRinging && !s.isAttached() &&
		s.notifier != nil && st.Caller != nil {
		s.notifier.IncomingCall(s.User.ID, *st.Caller, st.CallType)
	}
}

func (s *Session) handleCallEnd(final models.CallState, reason models.CallEndReason) {
	f := final
	s.push(models.ServerMessage{Type: models.ServerMessageTypeCallEnded, CallState: &f, EndReason: reason})
}

func (s *Session) handleMediaError(err error) {
	s.pushError(err.Error())
}

// callPeer resolves the simulated caller for an incoming-call trigger:
// either supplied explicitly or derived from the chat's demo contact.
func (s *Session) callPeer(msg models.ClientMessage) (models.User, bool) {
	if msg.Peer != nil {
		return *msg.Peer, true
	}
	if msg.ChatID != "" {
		return peerForChat(msg.ChatID)
	}
	return models.User{}, false
}

func (s *Session) isAttached() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.attached
}

func (s *Session) pushError(text string) {
	s.push(models.ServerMessage{Type: models.ServerMessageTypeError, Error: text})
}

func (s *Session) push(msg models.ServerMessage) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed || s.events == nil {
		return
	}
	select {
	case s.events <- msg:
	default:
		// A stalled client drops updates rather than blocking timers.
	}
}

func (s *Session) close() {
	s.Chat.Close()
	s.Call.Close()

	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.events != nil {
		close(s.events)
		s.events = nil
	}
	s.attached = false
}
