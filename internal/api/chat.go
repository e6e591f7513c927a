package api

import (
	"context"
	"net/http"

	"github.com/violive/liveshow-go/internal/models"
)

// ChatClient talks to the chat backend.
type ChatClient struct {
	httpClient
}

// NewChatClient creates a chat API client.
func NewChatClient(base string, timeoutSec int) *ChatClient {
	return &ChatClient{httpClient: newHTTPClient(base, "", timeoutSec)}
}

// History fetches the full message history for a channel. Migrated history is
// used for ended broadcasts.
func (c *ChatClient) History(ctx context.Context, channel string, migrated bool) ([]models.LiveChatMessage, error) {
	var query map[string]string
	if migrated {
		query = map[string]string{"migratedChats": "true"}
	}
	var out []models.LiveChatMessage
	_, err := c.do(ctx, http.MethodGet, "/chat/by-channel/chat-"+channel, query, nil, &out)
	return out, err
}

// Send posts one pre-serialized chat payload. The payload stays serialized so
// failed sends can be persisted and retried byte-for-byte.
func (c *ChatClient) Send(ctx context.Context, payload []byte) error {
	_, err := c.do(ctx, http.MethodPost, "/chat/send", nil, payload, nil)
	return err
}
