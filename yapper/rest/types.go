package rest

import (
	"fmt"
	"time"
)

// Chat types

// Participant is the other side of a one-to-one chat.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// LastMessage is the preview shown in the chat list.
type LastMessage struct {
	ID        string    `json:"id,omitempty"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chat is one entry of the chat list.
type Chat struct {
	ID          string       `json:"id"`
	Participant Participant  `json:"participant"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount int          `json:"unreadCount"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Message types

// Message is a single chat message. SenderID is empty on payloads that only
// carry the conversation-level sender.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Pagination is the server's continuation info for a page.
type Pagination struct {
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ChatsPage is one page of the chat list.
type ChatsPage struct {
	Chats      []Chat     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// MessagesPage is one page of a conversation.
type MessagesPage struct {
	ChatID     string
	Sender     *Participant
	Messages   []Message
	Pagination Pagination
}

// Request parameters

// ChatsParams selects a chat list page. Zero values are omitted from the query.
type ChatsParams struct {
	Limit  int
	Cursor string
}

// MessagesParams selects a message page of one chat.
type MessagesParams struct {
	ChatID string
	Limit  int
	Cursor string
}

// Envelopes

type envelope[T any] struct {
	Data T `json:"data"`
}

type messagesData struct {
	ChatID   string       `json:"chatId"`
	Sender   *Participant `json:"sender"`
	Messages []Message    `json:"messages"`
}

type messagesBody struct {
	Data       messagesData `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// errorBody covers the error shapes the API returns.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
