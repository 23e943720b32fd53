package guardrails

import (
	"fmt"
	"time"

	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/internal/observability"
	"github.com/haasonsaas/dealdesk/internal/tools"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// Decision is the outcome class of a guardrail check.
type Decision int

const (
	// DecisionAllow permits the call.
	DecisionAllow Decision = iota

	// DecisionBlock rejects the call without invoking the handler. Blocks
	// are distinct from errors: a turn in which every tool call was blocked
	// ends the agent loop.
	DecisionBlock

	// DecisionError rejects the call with a user-correctable error.
	DecisionError
)

// Outcome is the result of evaluating all checks for one tool call.
type Outcome struct {
	Decision Decision
	Reason   string
	Err      error
}

// Allowed reports whether the call may proceed.
func (o Outcome) Allowed() bool { return o.Decision == DecisionAllow }

// Engine evaluates existence, workflow allowlist, stage gating, and the
// mutation throttle, in that order.
type Engine struct {
	registry  *tools.Registry
	allowlist Allowlist
	throttle  Throttle
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewEngine wires the guardrail checks. A nil throttle disables rate
// limiting; a nil allowlist uses the default workflow ownership.
func NewEngine(registry *tools.Registry, allowlist Allowlist, throttle Throttle, metrics *observability.Metrics) *Engine {
	if allowlist == nil {
		allowlist = DefaultAllowlist()
	}
	return &Engine{
		registry:  registry,
		allowlist: allowlist,
		throttle:  throttle,
		metrics:   metrics,
		now:       time.Now,
	}
}

// SetClock overrides the throttle clock. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Visible reports whether a tool should be offered to the model at all for
// the given context: in the workflow's allowed set, and not mutating when
// the context is read-only.
func (e *Engine) Visible(execCtx models.ExecutionContext, def *tools.Definition) bool {
	if !e.allowlist.Allows(execCtx.Workflow, def.Name) {
		return false
	}
	if execCtx.ReadOnly && def.Mutating {
		return false
	}
	return true
}

// Check evaluates the guardrails for one resolved tool call.
func (e *Engine) Check(execCtx models.ExecutionContext, internalName string) Outcome {
	def, ok := e.registry.Get(internalName)
	if !ok {
		return Outcome{
			Decision: DecisionError,
			Reason:   fmt.Sprintf("unregistered tool: %s", internalName),
			Err:      fmt.Errorf("unregistered tool: %s", internalName),
		}
	}

	if !e.allowlist.Allows(execCtx.Workflow, def.Name) {
		return Outcome{
			Decision: DecisionBlock,
			Reason:   fmt.Sprintf("%s is not available in the %s workflow", def.Name, execCtx.Workflow),
		}
	}
	if execCtx.ReadOnly && def.Mutating {
		return Outcome{
			Decision: DecisionBlock,
			Reason:   fmt.Sprintf("%s is unavailable: the current context is read-only", def.Name),
		}
	}

	if def.MinStage != "" {
		current := domain.Stage(execCtx.Stage)
		if !current.AtLeast(def.MinStage) {
			return Outcome{
				Decision: DecisionBlock,
				Reason: fmt.Sprintf("%s requires the entity to reach stage %s (currently %s)",
					def.Name, def.MinStage, orUnknown(execCtx.Stage)),
			}
		}
	}

	if def.Mutating && e.throttle != nil {
		if err := e.throttle.Allow(def.Name, execCtx.EntityID, e.now()); err != nil {
			if e.metrics != nil {
				e.metrics.ThrottleRejections.WithLabelValues(def.Name).Inc()
			}
			return Outcome{Decision: DecisionError, Reason: err.Error(), Err: err}
		}
	}

	return Outcome{Decision: DecisionAllow}
}

func orUnknown(stage string) string {
	if stage == "" {
		return "unknown"
	}
	return stage
}
