// ABOUTME: In-process pipeline state threaded through nodes during a single run.
// ABOUTME: Well-known slots are explicit struct fields; open metadata lives in the side Meta map.
package workflow

// NodeResult is what a node returns from Execute. Success=false aborts the
// pipeline and the Message becomes the workflow's error message.
type NodeResult struct {
	Success  bool           `json:"success"`
	Changes  []FileChange   `json:"changes,omitempty"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NodeOutcome is the per-node entry recorded into State.NodeResults after a
// node executes, in plan order.
type NodeOutcome struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	ChangesCount int            `json:"changes_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// State is the pipeline state for one run. It is created by the executor,
// mutated in place by each node's merge step, and discarded at pipeline end.
// A run owns its State exclusively; nothing here needs locking.
type State struct {
	VaultSummary       string
	Strategy           string
	Prompts            []string
	AccumulatedChanges []FileChange
	NodeResults        map[string]NodeOutcome
	NodeOrder          []string
	Messages           []string

	// Meta holds open metadata keys deposited by nodes for downstream nodes
	// (topic_title, proposal_filename, ...). The executor's merge rule
	// applies here and only here.
	Meta map[string]any
}

// NewState builds the initial state for a pipeline run.
func NewState(vaultSummary, strategy string, prompts []string) *State {
	return &State{
		VaultSummary:       vaultSummary,
		Strategy:           strategy,
		Prompts:            append([]string(nil), prompts...),
		AccumulatedChanges: make([]FileChange, 0),
		NodeResults:        make(map[string]NodeOutcome),
		NodeOrder:          make([]string, 0),
		Messages:           make([]string, 0),
		Meta:               make(map[string]any),
	}
}

// PrimaryPrompt returns the first prompt of the run.
func (s *State) PrimaryPrompt() string {
	if len(s.Prompts) == 0 {
		return ""
	}
	return s.Prompts[0]
}

// MetaString reads a string-valued metadata key, returning "" when the key
// is absent or holds a non-string value.
func (s *State) MetaString(key string) string {
	v, ok := s.Meta[key]
	if !ok {
		return ""
	}
	str, ok := v.(string)
	if !ok {
		return ""
	}
	return str
}

// RecordResult folds a node's result into the state: appends its changes,
// records the ordered NodeOutcome, logs a message line, and merges the
// node's metadata into Meta, overwriting prior values key by key.
func (s *State) RecordResult(nodeName string, res NodeResult) {
	s.AccumulatedChanges = append(s.AccumulatedChanges, res.Changes...)
	s.NodeResults[nodeName] = NodeOutcome{
		Success:      res.Success,
		Message:      res.Message,
		ChangesCount: len(res.Changes),
		Metadata:     res.Metadata,
	}
	s.NodeOrder = append(s.NodeOrder, nodeName)
	s.Messages = append(s.Messages, nodeName+": "+res.Message)
	for k, v := range res.Metadata {
		s.Meta[k] = v
	}
}

// Plan is a graph plan: the ordered node names of a workflow's pipeline and
// its strategy tag. Plans are plain data, immutable per workflow type.
type Plan struct {
	Nodes    []string `json:"nodes"`
	Strategy string   `json:"strategy"`
}
