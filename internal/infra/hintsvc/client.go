// Package hintsvc talks to the external LLM-backed service that validates
// answers and generates hints. Both calls are bounded; the game layer owns
// the deterministic fallbacks when this service fails or times out.
package hintsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client is an HTTP JSON client for the validation/hint backend.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	Text       string                `json:"text"`
	Candidates []domain.PlayerRecord `json:"candidates"`
	Prompt     string                `json:"prompt"`
}

type validateResponse struct {
	IsCorrect bool   `json:"isCorrect"`
	Message   string `json:"message"`
}

type hintRequest struct {
	Candidates []domain.PlayerRecord `json:"candidates"`
	Prompt     string                `json:"prompt"`
	Tier       domain.HintTier       `json:"tier"`
}

type hintResponse struct {
	Text string `json:"text"`
}

// Validate asks the service whether text names one of the candidates.
func (c *Client) Validate(ctx context.Context, text string, candidates []domain.PlayerRecord, q domain.Question) (domain.Verdict, error) {
	var resp validateResponse
	err := c.post(ctx, "/v1/validate", validateRequest{
		Text:       text,
		Candidates: candidates,
		Prompt:     q.Prompt,
	}, &resp)
	if err != nil {
		return domain.Verdict{}, err
	}
	return domain.Verdict{Correct: resp.IsCorrect, Message: resp.Message}, nil
}

// Hint asks the service for hint text of the given tier.
func (c *Client) Hint(ctx context.Context, candidates []domain.PlayerRecord, q domain.Question, tier domain.HintTier) (string, error) {
	var resp hintResponse
	err := c.post(ctx, "/v1/hint", hintRequest{
		Candidates: candidates,
		Prompt:     q.Prompt,
		Tier:       tier,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hintsvc: %s returned status %d: %s", path, resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}
