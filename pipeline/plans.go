// ABOUTME: Graph plans as data: the article-proposal plan and the default node registry wiring.
// ABOUTME: Future plans slot in here without touching the executor.
package pipeline

import (
	"github.com/quillworks/scrivener/clients"
	"github.com/quillworks/scrivener/workflow"
)

// ArticleProposalType is the workflow type served by the article-proposal plan.
const ArticleProposalType = "article-proposal"

// DefaultArticleStrategy tags article-proposal runs that do not override it.
const DefaultArticleStrategy = "deep-research"

// PlanBuilder returns the plan for a workflow type. The strategy argument is
// the caller's override; builders substitute their default when it is empty.
type PlanBuilder func(strategy string) workflow.Plan

// ArticleProposalPlan builds the three-node article-proposal plan.
func ArticleProposalPlan(strategy string) workflow.Plan {
	if strategy == "" {
		strategy = DefaultArticleStrategy
	}
	return workflow.Plan{
		Nodes:    []string{"topic_proposal", "deep_research", SubmitNodeName},
		Strategy: strategy,
	}
}

// DefaultNodeRegistry wires the article-proposal nodes to the given clients.
func DefaultNodeRegistry(llm clients.LLMClient, research clients.ResearchClient, drafts clients.DraftBranchClient) *Registry {
	reg := NewRegistry()
	reg.Register(&TopicProposalNode{LLM: llm})
	reg.Register(&DeepResearchNode{Research: research})
	reg.Register(&SubmitDraftBranchNode{Drafts: drafts})
	return reg
}
