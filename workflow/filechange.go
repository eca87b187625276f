// ABOUTME: FileChange tagged union with validating constructors for create, update, and delete.
// ABOUTME: Create/Update require content, Delete forbids it; paths are forward-slash relative.
package workflow

import (
	"fmt"
	"strings"
)

// ChangeOp discriminates the kind of a FileChange.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// FileChange describes one file mutation produced by a pipeline node.
// Construct values through NewCreate, NewUpdate, or NewDelete so the
// content invariant always holds.
type FileChange struct {
	Op      ChangeOp `json:"op"`
	Path    string   `json:"path"`
	Content *string  `json:"content,omitempty"`
}

// NewCreate builds a create change. Content is required.
func NewCreate(path, content string) (FileChange, error) {
	if err := validateChangePath(path); err != nil {
		return FileChange{}, err
	}
	return FileChange{Op: OpCreate, Path: path, Content: &content}, nil
}

// NewUpdate builds an update change. Content is required.
func NewUpdate(path, content string) (FileChange, error) {
	if err := validateChangePath(path); err != nil {
		return FileChange{}, err
	}
	return FileChange{Op: OpUpdate, Path: path, Content: &content}, nil
}

// NewDelete builds a delete change. Content must be absent.
func NewDelete(path string) (FileChange, error) {
	if err := validateChangePath(path); err != nil {
		return FileChange{}, err
	}
	return FileChange{Op: OpDelete, Path: path}, nil
}

// Validate re-checks the union invariant, for changes that crossed a
// serialization boundary and bypassed the constructors.
func (fc FileChange) Validate() error {
	if err := validateChangePath(fc.Path); err != nil {
		return err
	}
	switch fc.Op {
	case OpCreate, OpUpdate:
		if fc.Content == nil {
			return fmt.Errorf("%s change for %q requires content", fc.Op, fc.Path)
		}
	case OpDelete:
		if fc.Content != nil {
			return fmt.Errorf("delete change for %q must not carry content", fc.Path)
		}
	default:
		return fmt.Errorf("unknown change op %q", fc.Op)
	}
	return nil
}

// validateChangePath enforces forward-slash relative paths with no parent
// traversal segments.
func validateChangePath(path string) error {
	if path == "" {
		return fmt.Errorf("change path must not be empty")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("change path %q must be relative", path)
	}
	if strings.Contains(path, "\\") {
		return fmt.Errorf("change path %q must use forward slashes", path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return fmt.Errorf("change path %q must not contain '..' segments", path)
		}
	}
	return nil
}
