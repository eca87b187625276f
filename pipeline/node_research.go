// ABOUTME: Deep-research node: fetches a markdown article for the proposed topic.
// ABOUTME: Emits one Create change under proposals/ with a slug-and-timestamp filename.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"

	"github.com/quillworks/scrivener/clients"
	"github.com/quillworks/scrivener/workflow"
)

// proposalTimestampLayout is the UTC timestamp embedded in proposal filenames.
const proposalTimestampLayout = "20060102_150405"

// DeepResearchNode obtains a researched article for the topic proposed upstream.
type DeepResearchNode struct {
	Research clients.ResearchClient

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func (n *DeepResearchNode) Name() string { return "deep_research" }

// Validate requires the upstream topic_title metadata key.
func (n *DeepResearchNode) Validate(s *workflow.State) bool {
	return s.MetaString("topic_title") != ""
}

// Execute calls the research client and converts the article into a Create
// change at proposals/<slug>-<timestamp>.md.
func (n *DeepResearchNode) Execute(ctx context.Context, s *workflow.State) workflow.NodeResult {
	topic := s.MetaString("topic_title")

	result, err := n.Research.Research(ctx, topic)
	if err != nil {
		return failure("research service call failed: %v", err)
	}
	if !result.Success {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "research service reported failure without detail"
		}
		return failure("research service: %s", msg)
	}
	if !markdownHasContent(result.Article) {
		return failure("research service returned an empty article")
	}

	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	filename := fmt.Sprintf("%s-%s.md", workflow.Slugify(topic), now().UTC().Format(proposalTimestampLayout))
	path := "proposals/" + filename

	change, err := workflow.NewCreate(path, result.Article)
	if err != nil {
		return failure("build proposal change: %v", err)
	}

	return workflow.NodeResult{
		Success: true,
		Changes: []workflow.FileChange{change},
		Message: fmt.Sprintf("researched %q from %d source(s)", topic, result.Metadata.SourceCount),
		Metadata: map[string]any{
			"proposal_filename": filename,
			"proposal_path":     path,
			"sources_count":     result.Metadata.SourceCount,
		},
	}
}

// markdownHasContent parses the article and reports whether the document has
// any renderable blocks, rejecting empty or whitespace-only payloads.
func markdownHasContent(article string) bool {
	doc := goldmark.New().Parser().Parse(text.NewReader([]byte(article)))
	return doc.HasChildren()
}
