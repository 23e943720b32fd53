// Package guardrails decides, for a given workflow, entity, stage, and tool,
// whether a call is allowed, blocked, or rejected. Checks are pure except the
// mutation throttle, which keeps process-wide sliding-window state.
package guardrails

import (
	"github.com/haasonsaas/dealdesk/internal/tools"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// Allowlist maps each workflow to the tool-name patterns it owns. Patterns
// are exact names or "prefix.*" wildcards.
type Allowlist map[models.Workflow][]string

// DefaultAllowlist returns the fixed workflow ownership of the catalog.
func DefaultAllowlist() Allowlist {
	return Allowlist{
		models.WorkflowEstimates: {"estimates.*", "quote.*", "roles.*"},
		models.WorkflowContracts: {"contracts.*", "roles.*"},
	}
}

// Allows reports whether the workflow's patterns admit the internal tool
// name. An unknown workflow admits nothing.
func (a Allowlist) Allows(workflow models.Workflow, name string) bool {
	for _, pattern := range a[workflow] {
		if tools.MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}
