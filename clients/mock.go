// ABOUTME: Mock implementations of the external client interfaces for development and tests.
// ABOUTME: Selected via the SCRIVENER_USE_MOCK_* config toggles; deterministic and offline.
package clients

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockLLMClient returns a canned topic title derived from the last user message.
type MockLLMClient struct {
	// Response overrides the derived title when non-empty.
	Response string
	// Err, when set, is returned from every Invoke call.
	Err error
}

// Invoke returns the configured response, or title-cases the last user message.
func (m *MockLLMClient) Invoke(ctx context.Context, messages []Message) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response != "" {
		return m.Response, nil
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" && messages[i].Content != "" {
			return titleCase(messages[i].Content), nil
		}
	}
	return "Untitled Proposal", nil
}

// MockResearchClient returns a short canned article for any topic.
type MockResearchClient struct {
	Result *ResearchResult
	Err    error
}

// Research returns the configured result, or a two-paragraph stub article.
func (m *MockResearchClient) Research(ctx context.Context, topicTitle string) (*ResearchResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	article := fmt.Sprintf("# %s\n\nThis is a mock research article about %s.\n\n## Sources\n\n- mock source\n",
		topicTitle, topicTitle)
	return &ResearchResult{
		Success:        true,
		Article:        article,
		Metadata:       ResearchMetadata{SourceCount: 1},
		ProcessingTime: 10 * time.Millisecond,
	}, nil
}

// MockDraftBranchClient returns a deterministic branch name for the first draft.
type MockDraftBranchClient struct {
	BranchName string
	Err        error

	// LastRequest records the most recent request, for assertions.
	LastRequest *DraftRequest
	Calls       int
}

// CreateDraftBranch records the request and returns the configured branch name.
func (m *MockDraftBranchClient) CreateDraftBranch(ctx context.Context, req DraftRequest) (string, error) {
	m.Calls++
	m.LastRequest = &req
	if m.Err != nil {
		return "", m.Err
	}
	if m.BranchName != "" {
		return m.BranchName, nil
	}
	if len(req.Drafts) == 0 {
		return "", fmt.Errorf("no drafts in request")
	}
	name := strings.TrimSuffix(req.Drafts[0].FileName, ".md")
	return "drafts/" + name, nil
}

// StaticVaultClient returns a fixed vault summary.
type StaticVaultClient struct {
	Text string
}

// Summary returns the configured summary text.
func (v *StaticVaultClient) Summary(ctx context.Context) (string, error) {
	return v.Text, nil
}

// titleCase uppercases the first letter of each word, leaving short
// connectives alone after the first word.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if i > 0 {
			switch w {
			case "a", "an", "of", "on", "in", "the", "and", "or", "to", "for":
				continue
			}
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
