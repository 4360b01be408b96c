// Package chat opens conversations on the messaging collaborator. Message
// transport itself is out of scope for the engine; it only triggers the
// conversation linking the assigned guard and the reporting students.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const httpTimeout = 10 * time.Second

// Opener creates a conversation and returns its ID.
type Opener interface {
	Open(ctx context.Context, participants []string) (string, error)
}

// Client talks to the chat service over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a chat client for the given base URL. token is sent as
// a bearer credential when non-empty.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

type openRequest struct {
	Participants []string `json:"participants"`
}

type openResponse struct {
	ConversationID string `json:"conversation_id"`
}

// Open implements Opener.
func (c *Client) Open(ctx context.Context, participants []string) (string, error) {
	body, err := json.Marshal(openRequest{Participants: participants})
	if err != nil {
		return "", fmt.Errorf("chat: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/conversations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req) //nolint:gosec // G704: baseURL is from trusted config, not user input
	if err != nil {
		return "", fmt.Errorf("chat: post conversation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat: conversation create returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out openResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chat: decode response: %w", err)
	}
	if out.ConversationID == "" {
		return "", fmt.Errorf("chat: empty conversation_id in response")
	}
	return out.ConversationID, nil
}

// Memory is an in-process Opener for dev and tests.
type Memory struct {
	mu    sync.Mutex
	opened map[string][]string // conversation ID -> participants
}

// NewMemory creates an empty in-process Opener.
func NewMemory() *Memory {
	return &Memory{opened: make(map[string][]string)}
}

// Open implements Opener, minting a UUID conversation ID.
func (m *Memory) Open(_ context.Context, participants []string) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.opened[id] = append([]string(nil), participants...)
	m.mu.Unlock()
	return id, nil
}

// Participants returns the recorded participants for a conversation.
func (m *Memory) Participants(id string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.opened[id]
	return p, ok
}
