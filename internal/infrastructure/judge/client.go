package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"QAForge/internal/domain"
	"QAForge/internal/ports"
)

// Client asks an external scoring service for its opinion on a pair.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Judge = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Judge sends the pair with its chunk and returns a score in [0,1].
func (c *Client) Judge(ctx context.Context, pair domain.QAPair, chunkText string) (float64, error) {
	if c.http == nil || c.endpoint == "" {
		return 0, errors.New("judge client misconfigured")
	}

	payload := map[string]any{
		"question": pair.Question,
		"answer":   pair.Answer,
		"context":  chunkText,
	}

	var resp struct {
		Score *float64 `json:"score"`
	}
	if err := c.post(ctx, "/score", payload, &resp); err != nil {
		return 0, err
	}
	if resp.Score == nil {
		return 0, errors.New("judge response without score")
	}
	if *resp.Score < 0 || *resp.Score > 1 {
		return 0, fmt.Errorf("judge score %v outside [0,1]", *resp.Score)
	}
	return *resp.Score, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
