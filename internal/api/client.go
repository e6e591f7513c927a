// Package api holds the HTTP clients for the external stream metadata,
// engagement and chat backends. All requests carry the configured API key and
// use a bounded-timeout client; response envelopes follow the platform's
// {success, data, error} convention.
package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sentinel errors mapped from engagement API status codes.
var (
	ErrNotFound     = errors.New("api: not found")
	ErrAlreadyVoted = errors.New("api: already voted")
	ErrClosedWindow = errors.New("api: window closed")
)

// envelope is the standard API response body.
type envelope struct {
	Success bool                `json:"success"`
	Data    jsoniter.RawMessage `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type httpClient struct {
	base   string
	apiKey string
	client *http.Client
}

func newHTTPClient(base, apiKey string, timeoutSec int) httpClient {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	return httpClient{
		base:   base,
		apiKey: apiKey,
		client: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

// do performs one request and decodes the enveloped response into out (when
// out is non-nil). The returned status code is valid whenever err is nil or
// one of the sentinel errors.
func (c httpClient) do(ctx context.Context, method, path string, query map[string]string, body []byte, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "read response")
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return resp.StatusCode, ErrNotFound
	case http.StatusConflict:
		return resp.StatusCode, ErrAlreadyVoted
	case http.StatusGone:
		return resp.StatusCode, ErrClosedWindow
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errors.Errorf("%s %s failed with status code: %d", method, path, resp.StatusCode)
	}

	if out != nil {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return resp.StatusCode, errors.Wrap(err, "decode envelope")
		}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return resp.StatusCode, errors.Wrap(err, "decode payload")
			}
		}
	}
	return resp.StatusCode, nil
}
