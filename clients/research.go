// ABOUTME: JSON-over-HTTP adapter for the deep-research service.
// ABOUTME: Posts a topic title and decodes the article payload; service refusals are not transport errors.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPResearchClient calls a remote research service over HTTP.
type HTTPResearchClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPResearchClient creates a research client for the given base URL.
func NewHTTPResearchClient(baseURL string, timeout time.Duration) *HTTPResearchClient {
	return &HTTPResearchClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// researchWire is the service's wire format.
type researchWire struct {
	Success        bool           `json:"success"`
	Article        string         `json:"article"`
	Metadata       map[string]any `json:"metadata"`
	Diagnostics    map[string]any `json:"diagnostics"`
	ProcessingTime float64        `json:"processing_time"`
	ErrorMessage   string         `json:"error_message"`
}

// Research fetches a markdown article for the topic title.
func (c *HTTPResearchClient) Research(ctx context.Context, topicTitle string) (*ResearchResult, error) {
	body, err := json.Marshal(map[string]string{"topic_title": topicTitle})
	if err != nil {
		return nil, fmt.Errorf("marshal research request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/research", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build research request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call research service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("research service returned %d: %s", resp.StatusCode, payload)
	}

	var wire researchWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode research response: %w", err)
	}

	result := &ResearchResult{
		Success:        wire.Success,
		Article:        wire.Article,
		Diagnostics:    wire.Diagnostics,
		ProcessingTime: time.Duration(wire.ProcessingTime * float64(time.Second)),
		ErrorMessage:   wire.ErrorMessage,
	}
	if wire.Metadata != nil {
		if n, ok := wire.Metadata["source_count"].(float64); ok {
			result.Metadata.SourceCount = int(n)
		}
		result.Metadata.Extra = wire.Metadata
	}
	return result, nil
}
