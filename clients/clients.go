// ABOUTME: Narrow interfaces for the external collaborators the pipeline consumes.
// ABOUTME: LLM topic generation, deep research, draft-branch creation, and vault summaries.
package clients

import (
	"context"
	"time"
)

// Message is a single chat message sent to the LLM client.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// LLMClient produces a text completion for a conversation. The topic-proposal
// node uses it to turn a prompt into an article title.
type LLMClient interface {
	Invoke(ctx context.Context, messages []Message) (string, error)
}

// ResearchResult is the payload returned by the deep-research service.
type ResearchResult struct {
	Success        bool             `json:"success"`
	Article        string           `json:"article"`
	Metadata       ResearchMetadata `json:"metadata"`
	Diagnostics    map[string]any   `json:"diagnostics,omitempty"`
	ProcessingTime time.Duration    `json:"processing_time"`
	ErrorMessage   string           `json:"error_message,omitempty"`
}

// ResearchMetadata carries source attribution from the research service.
type ResearchMetadata struct {
	SourceCount int            `json:"source_count"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ResearchClient fetches a markdown article for a topic title. A result with
// Success=false is a service-level refusal, not a transport error.
type ResearchClient interface {
	Research(ctx context.Context, topicTitle string) (*ResearchResult, error)
}

// DraftFile is one file to include in a draft branch.
type DraftFile struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// DraftRequest is the payload sent to the draft-branch service.
type DraftRequest struct {
	Drafts []DraftFile `json:"drafts"`
}

// DraftBranchClient turns markdown drafts into a remote branch and returns
// the branch name, which must be non-empty on success.
type DraftBranchClient interface {
	CreateDraftBranch(ctx context.Context, req DraftRequest) (string, error)
}

// VaultClient supplies a summary of the knowledge vault, seeded into the
// pipeline state at executor entry.
type VaultClient interface {
	Summary(ctx context.Context) (string, error)
}
