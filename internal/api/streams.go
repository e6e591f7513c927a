package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/violive/liveshow-go/internal/models"
)

// StreamsClient talks to the stream metadata API.
type StreamsClient struct {
	httpClient
}

// NewStreamsClient creates a stream metadata API client.
func NewStreamsClient(base, apiKey string, timeoutSec int) *StreamsClient {
	return &StreamsClient{httpClient: newHTTPClient(base, apiKey, timeoutSec)}
}

// ActiveStreams returns every currently active live stream.
func (c *StreamsClient) ActiveStreams(ctx context.Context) ([]models.LiveStream, error) {
	var out []models.LiveStream
	_, err := c.do(ctx, http.MethodGet, "/livestreams/active", nil, nil, &out)
	return out, err
}

// Stream returns one stream by id.
func (c *StreamsClient) Stream(ctx context.Context, id int64) (*models.LiveStream, error) {
	var out models.LiveStream
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/livestreams/%d", id), nil, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Start marks a stream as broadcasting (host tooling).
func (c *StreamsClient) Start(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/livestreams/%d/start", id), nil, nil, nil)
	return err
}

// Stop marks a stream as ended (host tooling).
func (c *StreamsClient) Stop(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/livestreams/%d/stop", id), nil, nil, nil)
	return err
}

// Viewers returns the server-authoritative viewer count for a stream.
func (c *StreamsClient) Viewers(ctx context.Context, id int64) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/livestreams/%d/viewers", id), nil, nil, &out)
	return out.Count, err
}
