// ABOUTME: JSON-over-HTTP adapter for the version-control draft-branch service.
// ABOUTME: Submits draft files and returns the created branch name.
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

// HTTPDraftBranchClient calls a remote draft-branch service over HTTP.
type HTTPDraftBranchClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDraftBranchClient creates a draft-branch client for the given base URL.
func NewHTTPDraftBranchClient(baseURL string, timeout time.Duration) *HTTPDraftBranchClient {
	return &HTTPDraftBranchClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateDraftBranch submits the drafts and returns the remote branch name.
func (c *HTTPDraftBranchClient) CreateDraftBranch(ctx context.Context, draftReq DraftRequest) (string, error) {
	body, err := json.Marshal(draftReq)
	if err != nil {
		return "", fmt.Errorf("marshal draft request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/drafts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build draft request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call draft-branch service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("draft-branch service returned %d: %s", resp.StatusCode, payload)
	}

	var wire struct {
		BranchName string `json:"branch_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return "", fmt.Errorf("decode draft-branch response: %w", err)
	}
	return wire.BranchName, nil
}
