package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client provides REST API access to the Yapper chat endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	token     string
	tokenFunc func(ctx context.Context) (string, error)
}

// NewClient creates a new REST API client.
// baseURL should be the API root, e.g., "https://yapper.cmp27.space/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets a fixed bearer token for requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetTokenFunc makes the client read the bearer token per request, so a
// refreshed token is picked up without reconfiguring. It takes precedence
// over SetToken.
func (c *Client) SetTokenFunc(fn func(ctx context.Context) (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenFunc = fn
}

// Chat endpoints

// GetChats returns one page of the authenticated user's chats.
func (c *Client) GetChats(ctx context.Context, params ChatsParams) (*ChatsPage, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}

	var resp envelope[ChatsPage]
	if err := c.get(ctx, "/chat", q, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Chats == nil {
		resp.Data.Chats = []Chat{}
	}
	return &resp.Data, nil
}

// GetChat returns a single chat by ID.
func (c *Client) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var resp envelope[Chat]
	if err := c.get(ctx, "/chat/"+url.PathEscape(chatID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Message endpoints

// GetMessages returns one page of a chat's messages.
// Cursor is the previous page's NextCursor; empty requests the first page.
func (c *Client) GetMessages(ctx context.Context, params MessagesParams) (*MessagesPage, error) {
	if params.ChatID == "" {
		return nil, fmt.Errorf("get messages: chat id is required")
	}
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}

	var resp envelope[messagesBody]
	path := "/messages/chats/" + url.PathEscape(params.ChatID) + "/messages"
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	page := &MessagesPage{
		ChatID:     resp.Data.Data.ChatID,
		Sender:     resp.Data.Data.Sender,
		Messages:   resp.Data.Data.Messages,
		Pagination: resp.Data.Pagination,
	}
	if page.ChatID == "" {
		page.ChatID = params.ChatID
	}
	if page.Messages == nil {
		page.Messages = []Message{}
	}
	return page, nil
}

// Helper methods

func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.bearer(ctx)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req, dest)
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.RLock()
	fn, token := c.tokenFunc, c.token
	c.mu.RUnlock()
	if fn != nil {
		return fn(ctx)
	}
	return token, nil
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body, resp.Status)}
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// errorMessage picks the most specific message from an error body.
func errorMessage(body []byte, status string) string {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return status
}
