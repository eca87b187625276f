// ABOUTME: Topic-proposal node: turns the primary prompt into a single article title via the LLM client.
// ABOUTME: Carries the deliberate-failure test hook triggered by the phrase "fail intentionally".
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillworks/scrivener/clients"
	"github.com/quillworks/scrivener/workflow"
)

// FailHookPhrase triggers the deliberate failure path when present in the
// primary prompt, case-insensitively. This is the system's test hook and is
// part of the node contract.
const FailHookPhrase = "fail intentionally"

const topicPromptTemplate = `You are the editor of a knowledge vault. Propose exactly one article topic.

Vault summary:
%s

Request:
%s

Respond with only the topic title on a single line. No quotes, no heading markers, no explanation.`

// TopicProposalNode proposes an article topic from the run's prompts.
type TopicProposalNode struct {
	LLM clients.LLMClient
}

func (n *TopicProposalNode) Name() string { return "topic_proposal" }

// Validate requires at least one non-blank prompt.
func (n *TopicProposalNode) Validate(s *workflow.State) bool {
	return strings.TrimSpace(s.PrimaryPrompt()) != ""
}

// Execute renders the topic prompt, invokes the LLM, and records the parsed
// title under the topic_title metadata key.
func (n *TopicProposalNode) Execute(ctx context.Context, s *workflow.State) workflow.NodeResult {
	primary := s.PrimaryPrompt()
	if strings.Contains(strings.ToLower(primary), FailHookPhrase) {
		return failure("deliberate failure requested by prompt")
	}

	rendered := fmt.Sprintf(topicPromptTemplate, s.VaultSummary, strings.Join(s.Prompts, "\n"))
	raw, err := n.LLM.Invoke(ctx, []clients.Message{clients.UserMessage(rendered)})
	if err != nil {
		return failure("llm invocation failed: %v", err)
	}

	title := parseTopicTitle(raw)
	if title == "" {
		return failure("llm response contained no topic title")
	}

	return workflow.NodeResult{
		Success:  true,
		Message:  fmt.Sprintf("proposed topic %q", title),
		Metadata: map[string]any{"topic_title": title},
	}
}

// parseTopicTitle extracts a single title from an LLM response: the first
// non-empty line, stripped of heading markers, label prefixes, and quotes.
func parseTopicTitle(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		for _, prefix := range []string{"Title:", "Topic:"} {
			if strings.HasPrefix(line, prefix) {
				line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			}
		}
		line = strings.Trim(line, `"'`)
		return strings.TrimSpace(line)
	}
	return ""
}
