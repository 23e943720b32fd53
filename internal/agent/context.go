package agent

import (
	"context"
	"fmt"

	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// agreementLockedStatuses are agreement states that force a read-only
// context even when the entity record itself is writable.
var agreementLockedStatuses = map[string]bool{
	"signed":   true,
	"executed": true,
	"archived": true,
}

// ContextResolver turns an inbound request's workflow and entity reference
// into a fully populated ExecutionContext by consulting the domain service
// for the entity's stage and read-only state.
type ContextResolver struct {
	svc domain.Service
}

// NewContextResolver creates a resolver over the domain service.
func NewContextResolver(svc domain.Service) *ContextResolver {
	return &ContextResolver{svc: svc}
}

// Resolve loads the active entity and fills in stage and read-only state.
// An empty entity ID yields a context without entity data; an unknown
// entity is an error so the caller can reject the request up front.
func (r *ContextResolver) Resolve(ctx context.Context, workflow models.Workflow, entityID string, entityType models.EntityType, view string) (models.ExecutionContext, error) {
	execCtx := models.ExecutionContext{
		Workflow:   workflow,
		EntityID:   entityID,
		EntityType: entityType,
		View:       view,
	}
	if !workflow.Valid() {
		return execCtx, fmt.Errorf("unknown workflow: %q", workflow)
	}
	if execCtx.EntityType == "" {
		switch workflow {
		case models.WorkflowEstimates:
			execCtx.EntityType = models.EntityProject
		case models.WorkflowContracts:
			execCtx.EntityType = models.EntityAgreement
		}
	}
	if entityID == "" {
		return execCtx, nil
	}

	switch execCtx.EntityType {
	case models.EntityProject:
		p, err := r.svc.GetProject(ctx, entityID)
		if err != nil {
			return execCtx, fmt.Errorf("resolve project context: %w", err)
		}
		execCtx.Stage = string(p.Stage)
		execCtx.ReadOnly = p.ReadOnly
		if !execCtx.ReadOnly && p.LinkedAgreementID != "" {
			// A locked linked agreement freezes the estimate too.
			a, err := r.svc.GetAgreement(ctx, p.LinkedAgreementID)
			if err == nil && (a.ReadOnly || agreementLockedStatuses[a.Status]) {
				execCtx.ReadOnly = true
			}
		}
	case models.EntityAgreement:
		a, err := r.svc.GetAgreement(ctx, entityID)
		if err != nil {
			return execCtx, fmt.Errorf("resolve agreement context: %w", err)
		}
		execCtx.ReadOnly = a.ReadOnly || agreementLockedStatuses[a.Status]
	default:
		return execCtx, fmt.Errorf("unknown entity type: %q", execCtx.EntityType)
	}

	return execCtx, nil
}
