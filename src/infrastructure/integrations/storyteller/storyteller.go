// Package storyteller talks to the blog-generator model server. The
// server is an opaque remote dependency with a fixed request/response
// contract; this client does no interpretation beyond decoding it.
package storyteller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	DefaultURL = "http://localhost:8000"

	generatePath = "/api/blogs"
)

// ImageRef describes one uploaded image in storyline order. The
// optional metadata fields are omitted when extraction found nothing.
type ImageRef struct {
	URL       string   `json:"url"`
	Filename  string   `json:"filename"`
	Timestamp *string  `json:"timestamp,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// GenerateRequest is the payload sent to the model server. ID is a
// request-scoped correlation id, not the job id.
type GenerateRequest struct {
	ID     string     `json:"id"`
	Images []ImageRef `json:"images"`
	City   string     `json:"city"`
}

// BlogSection pairs one image URL with the narrative text the model
// wrote for it. Section order in the response is authoritative.
type BlogSection struct {
	Image string `json:"image"`
	Text  string `json:"text"`
}

type GenerateResponse struct {
	ID      int           `json:"id"`
	Blog    []BlogSection `json:"blog"`
	Comment string        `json:"comment"`
}

// Client is an HTTP client for the blog-generator server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a new blog-generator client. token may be empty
// when the server runs without authentication.
func NewClient(baseURL, token string, c *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = &http.Client{}
	}

	return &Client{
		httpClient: c,
		baseURL:    baseURL,
		token:      token,
	}
}

// Generate performs one synchronous generation call. An empty response
// body counts as a remote failure.
func (c *Client) Generate(ctx context.Context, genReq *GenerateRequest) (*GenerateResponse, error) {
	jsonData, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generation server returned status %d: %s", resp.StatusCode, string(body))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("generation server returned an empty response")
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if len(genResp.Blog) == 0 && genResp.Comment == "" {
		return nil, fmt.Errorf("generation server returned no content")
	}

	return &genResp, nil
}
