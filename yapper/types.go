package yapper

import "encoding/json"

const (
	ProtocolVersion = 1

	// Client -> server events
	eventHello       = "hello"
	EventJoinChat    = "joinChat"
	EventLeaveChat   = "leaveChat"
	EventTypingStart = "typingStart"
	EventTypingStop  = "typingStop"
	EventSendMessage = "sendMessage"

	// Server -> client events
	EventNewMessage         = "new_message"
	EventMessageSent        = "message_sent"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventUnreadChatsSummary = "unread_chats_summary"
	EventError              = "error"
)

// Inbound is the envelope client -> server.
type Inbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Outbound is the envelope server -> client.
type Outbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HelloPayload initiates the session. The token is also sent as the
// "auth" query parameter on the dial URL.
type HelloPayload struct {
	Protocol int       `json:"protocol,omitempty"`
	ClientID string    `json:"clientId,omitempty"`
	Auth     HelloAuth `json:"auth"`
}

type HelloAuth struct {
	Token string `json:"token"`
}

// ProtocolError describes a server error frame.
type ProtocolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}
