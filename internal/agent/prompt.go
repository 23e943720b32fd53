package agent

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/dealdesk/pkg/models"
)

// BuildSystemPrompt renders the per-request system prompt from the
// execution context. The prompt tells the model which workflow it is
// operating in and what it must not attempt, so guardrail blocks are rare
// rather than routine.
func BuildSystemPrompt(execCtx models.ExecutionContext) string {
	var b strings.Builder

	b.WriteString("You are the assistant inside a consulting workflow application. ")
	b.WriteString("You help with project estimation, work breakdown structures, quotes, and client agreements. ")
	b.WriteString("Use the provided tools to read and change data; never invent entity data you have not fetched.\n\n")

	switch execCtx.Workflow {
	case models.WorkflowEstimates:
		b.WriteString("Active workflow: estimates. You work on one project: its detail, WBS items, roles, and quote.\n")
	case models.WorkflowContracts:
		b.WriteString("Active workflow: contracts. You work on client agreements: their terms and versions.\n")
	}

	if execCtx.EntityID != "" {
		fmt.Fprintf(&b, "Active %s: %s\n", execCtx.EntityType, execCtx.EntityID)
	}
	if execCtx.Stage != "" {
		fmt.Fprintf(&b, "Current stage: %s. Tools gated on a later stage are unavailable until the project advances.\n", execCtx.Stage)
	}
	if execCtx.ReadOnly {
		b.WriteString("This context is read-only. Do not attempt changes; explain instead what would be changed.\n")
	}
	if execCtx.View != "" {
		fmt.Fprintf(&b, "The user is currently looking at the %s view.\n", execCtx.View)
	}

	b.WriteString("\nAfter your tools finish, reply with a short plain-language summary of what you did or found.")
	return b.String()
}
