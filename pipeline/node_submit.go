// ABOUTME: Submit-draft-branch node: turns the single accumulated Create change into a remote branch.
// ABOUTME: Rejects runs with multiple creates or empty draft content; empty branch names are failures.
package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/quillworks/scrivener/clients"
	"github.com/quillworks/scrivener/workflow"
)

// SubmitDraftBranchNode submits the researched draft to the draft-branch service.
type SubmitDraftBranchNode struct {
	Drafts clients.DraftBranchClient
}

func (n *SubmitDraftBranchNode) Name() string { return SubmitNodeName }

// Validate requires that upstream nodes accumulated at least one change.
func (n *SubmitDraftBranchNode) Validate(s *workflow.State) bool {
	return len(s.AccumulatedChanges) > 0
}

// Execute enforces the exactly-one-Create contract, calls the draft-branch
// service, and records the returned branch name.
func (n *SubmitDraftBranchNode) Execute(ctx context.Context, s *workflow.State) workflow.NodeResult {
	var creates []workflow.FileChange
	for _, change := range s.AccumulatedChanges {
		if change.Op == workflow.OpCreate {
			creates = append(creates, change)
		}
	}
	if len(creates) != 1 {
		return failure("expected exactly one create change, found %d", len(creates))
	}

	draft := creates[0]
	if draft.Content == nil || *draft.Content == "" {
		return failure("draft content for %s is empty", draft.Path)
	}

	branch, err := n.Drafts.CreateDraftBranch(ctx, clients.DraftRequest{
		Drafts: []clients.DraftFile{{
			FileName: path.Base(draft.Path),
			Content:  *draft.Content,
		}},
	})
	if err != nil {
		return failure("draft-branch service call failed: %v", err)
	}
	if branch == "" {
		return failure("draft-branch service returned an empty branch name")
	}

	return workflow.NodeResult{
		Success: true,
		Message: fmt.Sprintf("created draft branch %q", branch),
		Metadata: map[string]any{
			"branch_name": branch,
			"draft_file":  draft.Path,
		},
	}
}
