package models

type ClientMessageType string

const (
	ClientMessageTypeSend       ClientMessageType = "send"
	ClientMessageTypeTyping     ClientMessageType = "typing"
	ClientMessageTypeActivate   ClientMessageType = "activate"
	ClientMessageTypeCreateChat ClientMessageType = "createChat"

	ClientMessageTypeCallInitiate ClientMessageType = "callInitiate"
	ClientMessageTypeCallReceive  ClientMessageType = "callReceive"
	ClientMessageTypeCallAccept   ClientMessageType = "callAccept"
	ClientMessageTypeCallReject   ClientMessageType = "callReject"
	ClientMessageTypeCallEnd      ClientMessageType = "callEnd"
	ClientMessageTypeCallMute     ClientMessageType = "callMute"
	ClientMessageTypeCallVideo    ClientMessageType = "callVideo"
)

// ClientMessage is an operation sent by the client over the websocket.
// Which fields are meaningful depends on Type.
type ClientMessage struct {
	Type        ClientMessageType `json:"type"`
	ChatID      string            `json:"chatId,omitempty"`
	Content     string            `json:"content,omitempty"`
	MessageType MessageType       `json:"messageType,omitempty"`
	ChatName    string            `json:"chatName,omitempty"`
	ChatType    ChatType          `json:"chatType,omitempty"`
	CallType    CallType          `json:"callType,omitempty"`
	// Peer is the call counterpart: the recipient for callInitiate, the
	// simulated caller for callReceive.
	Peer *User `json:"peer,omitempty"`
}

type ServerMessageType string

const (
	ServerMessageTypeMessage       ServerMessageType = "message"
	ServerMessageTypeMessageStatus ServerMessageType = "messageStatus"
	ServerMessageTypeMessagesRead  ServerMessageType = "messagesRead"
	ServerMessageTypeTyping        ServerMessageType = "typing"
	ServerMessageTypeChat          ServerMessageType = "chat"
	ServerMessageTypeCallState     ServerMessageType = "callState"
	ServerMessageTypeCallEnded     ServerMessageType = "callEnded"
	ServerMessageTypeError         ServerMessageType = "error"
)

// ServerMessage is a state update pushed to the client.
type ServerMessage struct {
	Type      ServerMessageType `json:"type"`
	ChatID    string            `json:"chatId,omitempty"`
	Message   *Message          `json:"message,omitempty"`
	Chat      *Chat             `json:"chat,omitempty"`
	Typing    []TypingIndicator `json:"typing,omitempty"`
	CallState *CallState        `json:"callState,omitempty"`
	EndReason CallEndReason     `json:"endReason,omitempty"`
	Error     string            `json:"error,omitempty"`
}
