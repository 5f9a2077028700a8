package yapper

import "github.com/vovakirdan/yapper-sdk-go/yapper/rest"

// NewMessageEvent is pushed when a message lands in a chat the user belongs to.
type NewMessageEvent struct {
	ChatID  string       `json:"chatId"`
	Message rest.Message `json:"message"`
}

// MessageSentEvent acknowledges a sendMessage emit.
type MessageSentEvent struct {
	ChatID  string       `json:"chatId,omitempty"`
	Message rest.Message `json:"message"`
}

// TypingEvent is pushed for user_typing and user_stopped_typing.
type TypingEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// UnreadChat is one entry of an unread summary.
type UnreadChat struct {
	ChatID      string `json:"chatId"`
	UnreadCount int    `json:"unreadCount"`
}

// UnreadChatsSummary is sent once after every connection is established.
type UnreadChatsSummary struct {
	TotalUnread int          `json:"totalUnread"`
	Chats       []UnreadChat `json:"chats"`
}

// ChatPayload addresses a room for joinChat, leaveChat and typing emits.
type ChatPayload struct {
	ChatID string `json:"chatId"`
}

// SendMessagePayload publishes a message to a chat.
type SendMessagePayload struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}
