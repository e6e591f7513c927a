package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/violive/liveshow-go/internal/models"
)

// EngagementClient talks to the polls/contests API. Status codes carry
// semantics: 404 not-found, 409 already-voted, 410 closed window.
type EngagementClient struct {
	httpClient
}

// NewEngagementClient creates an engagement API client.
func NewEngagementClient(base, apiKey string, timeoutSec int) *EngagementClient {
	return &EngagementClient{httpClient: newHTTPClient(base, apiKey, timeoutSec)}
}

func (c *EngagementClient) query(broadcastID string) map[string]string {
	return map[string]string{"broadcastId": broadcastID, "apiKey": c.apiKey}
}

// Polls returns the polls declared for a broadcast.
func (c *EngagementClient) Polls(ctx context.Context, broadcastID string) ([]models.Poll, error) {
	var out []models.Poll
	_, err := c.do(ctx, http.MethodGet, "/v1/engagement/polls", c.query(broadcastID), nil, &out)
	return out, err
}

// Contests returns the contests declared for a broadcast.
func (c *EngagementClient) Contests(ctx context.Context, broadcastID string) ([]models.Contest, error) {
	var out []models.Contest
	_, err := c.do(ctx, http.MethodGet, "/v1/engagement/contests", c.query(broadcastID), nil, &out)
	return out, err
}

// Vote submits a vote for an option.
func (c *EngagementClient) Vote(ctx context.Context, pollID, optionID, userID string) error {
	body, err := json.Marshal(map[string]string{"option_id": optionID, "user_id": userID})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/engagement/polls/%s/vote", pollID), nil, body, nil)
	return err
}

// Participate submits a contest participation, with optional quiz answers.
func (c *EngagementClient) Participate(ctx context.Context, contestID, userID string, answers map[string]string) error {
	body, err := json.Marshal(map[string]interface{}{"user_id": userID, "answers": answers})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/engagement/contests/%s/participate", contestID), nil, body, nil)
	return err
}
