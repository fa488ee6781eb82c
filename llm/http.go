package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient implements Client against any endpoint accepting the
// CompletionRequest shape as a JSON body and returning {"response": "..."}
// — "tolerant of any transport; only the request/response shape is
// required" (spec §6).
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient builds an HTTPClient posting to endpoint.
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type httpRequestBody struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type httpResponseBody struct {
	Response string `json:"response"`
}

// Complete posts req to the configured endpoint and returns the "response" field.
func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(httpRequestBody{
		Prompt:      req.Prompt,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: http call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: http call returned status %d", resp.StatusCode)
	}

	var out httpResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	return out.Response, nil
}
