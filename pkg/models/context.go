package models

// Workflow is a named business context that scopes which tools are visible
// to the model.
type Workflow string

const (
	WorkflowEstimates Workflow = "estimates"
	WorkflowContracts Workflow = "contracts"
)

// Valid reports whether the workflow is one of the known contexts.
func (w Workflow) Valid() bool {
	return w == WorkflowEstimates || w == WorkflowContracts
}

// EntityType identifies the kind of business entity a request operates on.
type EntityType string

const (
	EntityProject   EntityType = "project"
	EntityAgreement EntityType = "agreement"
)

// ExecutionContext is the per-request context for one orchestrator
// invocation. It is immutable for the duration of the request.
type ExecutionContext struct {
	Workflow   Workflow   `json:"workflow,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
	Stage      string     `json:"stage,omitempty"`
	ReadOnly   bool       `json:"read_only,omitempty"`
	View       string     `json:"view,omitempty"`
}
