package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// Typed tool inputs. Fields without omitempty are required in the generated
// schema; the executor validates raw arguments against it before the handler
// runs.

// ProjectRef identifies the project a tool operates on.
type ProjectRef struct {
	ProjectID string `json:"projectId" jsonschema_description:"Identifier of the active project"`
}

// AgreementRef identifies the agreement a tool operates on.
type AgreementRef struct {
	AgreementID string `json:"agreementId" jsonschema_description:"Identifier of the active agreement"`
}

// WbsItemInput is one work-breakdown row supplied by the model.
type WbsItemInput struct {
	ID          string  `json:"id,omitempty" jsonschema_description:"Existing item ID when updating; omit to create"`
	Title       string  `json:"title" jsonschema_description:"Short work item title"`
	Description string  `json:"description,omitempty"`
	RoleID      string  `json:"roleId,omitempty" jsonschema_description:"Billable role performing the work"`
	Hours       float64 `json:"hours" jsonschema_description:"Estimated effort in hours"`
}

// GenerateWbsInput is the payload for drafting new WBS rows.
type GenerateWbsInput struct {
	ProjectID string         `json:"projectId"`
	Items     []WbsItemInput `json:"items" jsonschema_description:"Drafted work breakdown rows"`
}

// AdvanceStageInput moves a project forward in its lifecycle.
type AdvanceStageInput struct {
	ProjectID string `json:"projectId"`
	Stage     string `json:"stage,omitempty" jsonschema_description:"Target stage; omit to advance to the next stage"`
}

// EmptyInput is used by tools that take no arguments.
type EmptyInput struct{}

// CreateVersionInput snapshots an agreement revision.
type CreateVersionInput struct {
	AgreementID string `json:"agreementId"`
	Notes       string `json:"notes,omitempty" jsonschema_description:"What changed in this revision"`
}

// UpdateTermsInput merges contract terms into an agreement.
type UpdateTermsInput struct {
	AgreementID string            `json:"agreementId"`
	Terms       map[string]string `json:"terms" jsonschema_description:"Term name to term text"`
}

func jsonResult(v any, reason string) (*Result, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &Result{Content: string(b), Raw: v, Reason: reason}, nil
}

func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("decode arguments: %w", err)
	}
	return v, nil
}

// BuildCatalog constructs the fixed tool catalog against the given domain
// service. Called once at startup; the resulting registry is immutable.
func BuildCatalog(svc domain.Service) (*Registry, error) {
	reg := NewRegistry()

	defs := []*Definition{
		{
			Name:          "estimates.getProjectDetail",
			Description:   "Fetch the active project with its client, stage, and metadata.",
			Schema:        MustInputSchema(&ProjectRef{}),
			ContextKey:    "projectId",
			ContextEntity: models.EntityProject,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[ProjectRef](args)
				if err != nil {
					return nil, err
				}
				p, err := svc.GetProject(ctx, in.ProjectID)
				if err != nil {
					return nil, err
				}
				return jsonResult(p, fmt.Sprintf("Fetched project %s (stage %s)", p.Name, p.Stage))
			},
		},
		{
			Name:          "estimates.listWbsItems",
			Description:   "List the project's work breakdown structure rows in order.",
			Schema:        MustInputSchema(&ProjectRef{}),
			ContextKey:    "projectId",
			ContextEntity: models.EntityProject,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[ProjectRef](args)
				if err != nil {
					return nil, err
				}
				items, err := svc.ListWbsItems(ctx, in.ProjectID)
				if err != nil {
					return nil, err
				}
				return jsonResult(items, fmt.Sprintf("Listed %d WBS items", len(items)))
			},
		},
		{
			Name:             "estimates.generateWbsItems",
			Description:      "Store newly drafted work breakdown rows for the project.",
			Schema:           MustInputSchema(&GenerateWbsInput{}),
			Mutating:         true,
			RefreshOnSuccess: true,
			MinStage:         domain.StageRequirements,
			ContextKey:       "projectId",
			ContextEntity:    models.EntityProject,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[GenerateWbsInput](args)
				if err != nil {
					return nil, err
				}
				items := wbsItems(in.Items)
				saved, err := svc.UpsertWbsItems(ctx, in.ProjectID, items)
				if err != nil {
					return nil, err
				}
				return jsonResult(saved, fmt.Sprintf("Generated %d WBS items", len(in.Items)))
			},
		},
		{
			Name:             "estimates.updateWbsItems",
			Description:      "Update existing work breakdown rows (titles, roles, hours).",
			Schema:           MustInputSchema(&GenerateWbsInput{}),
			Mutating:         true,
			RefreshOnSuccess: true,
			MinStage:         domain.StageRequirements,
			ContextKey:       "projectId",
			ContextEntity:    models.EntityProject,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[GenerateWbsInput](args)
				if err != nil {
					return nil, err
				}
				saved, err := svc.UpsertWbsItems(ctx, in.ProjectID, wbsItems(in.Items))
				if err != nil {
					return nil, err
				}
				return jsonResult(saved, fmt.Sprintf("Updated %d WBS items", len(in.Items)))
			},
		},
		{
			Name:             "estimates.advanceStage",
			Description:      "Advance the project to the next lifecycle stage, or to a named stage.",
			Schema:           MustInputSchema(&AdvanceStageInput{}),
			Mutating:         true,
			RefreshOnSuccess: true,
			ContextKey:       "projectId",
			ContextEntity:    models.EntityProject,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[AdvanceStageInput](args)
				if err != nil {
					return nil, err
				}
				p, err := svc.GetProject(ctx, in.ProjectID)
				if err != nil {
					return nil, err
				}
				target := p.Stage.Next()
				if in.Stage != "" {
					target, err = domain.ParseStage(in.Stage)
					if err != nil {
						return nil, err
					}
				}
				updated, err := svc.UpdateStage(ctx, in.ProjectID, target)
				if err != nil {
					return nil, err
				}
				return jsonResult(updated, fmt.Sprintf("Project moved to stage %s", updated.Stage))
			},
		},
		{
			Name:        "roles.listRoles",
			Description: "List billable roles and hourly rates.",
			Schema:      MustInputSchema(&EmptyInput{}),
			Handler: func(ctx context.Context, _ json.RawMessage) (*Result, error) {
				roles, err := svc.ListRoles(ctx)
				if err != nil {
					return nil, err
				}
				return jsonResult(roles, fmt.Sprintf("Listed %d roles", len(roles)))
			},
		},
		{
			Name:          "quote.getQuote",
			Description:   "Fetch the priced quote derived from the project's estimate.",
			Schema:        MustInputSchema(&ProjectRef{}),
			MinStage:      domain.StageEffort,
			ContextKey:    "projectId",
			ContextEntity: models.EntityProject,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[ProjectRef](args)
				if err != nil {
					return nil, err
				}
				q, err := svc.GetQuote(ctx, in.ProjectID)
				if err != nil {
					return nil, err
				}
				return jsonResult(q, fmt.Sprintf("Quote total %.2f", q.Total))
			},
		},
		{
			Name:             "quote.recalculate",
			Description:      "Recalculate the quote from current WBS hours and role rates.",
			Schema:           MustInputSchema(&ProjectRef{}),
			Mutating:         true,
			RefreshOnSuccess: true,
			MinStage:         domain.StageEffort,
			ContextKey:       "projectId",
			ContextEntity:    models.EntityProject,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[ProjectRef](args)
				if err != nil {
					return nil, err
				}
				q, err := svc.RecalculateQuote(ctx, in.ProjectID)
				if err != nil {
					return nil, err
				}
				return jsonResult(q, fmt.Sprintf("Recalculated quote, total %.2f", q.Total))
			},
		},
		{
			Name:          "contracts.getAgreement",
			Description:   "Fetch the active agreement with terms and version history.",
			Schema:        MustInputSchema(&AgreementRef{}),
			ContextKey:    "agreementId",
			ContextEntity: models.EntityAgreement,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[AgreementRef](args)
				if err != nil {
					return nil, err
				}
				a, err := svc.GetAgreement(ctx, in.AgreementID)
				if err != nil {
					return nil, err
				}
				return jsonResult(a, fmt.Sprintf("Fetched agreement %q", a.Title))
			},
		},
		{
			Name:        "contracts.listAgreements",
			Description: "List all agreements with status.",
			Schema:      MustInputSchema(&EmptyInput{}),
			Handler: func(ctx context.Context, _ json.RawMessage) (*Result, error) {
				as, err := svc.ListAgreements(ctx)
				if err != nil {
					return nil, err
				}
				return jsonResult(as, fmt.Sprintf("Listed %d agreements", len(as)))
			},
		},
		{
			Name:             "contracts.createAgreementVersion",
			Description:      "Snapshot a new immutable version of the agreement.",
			Schema:           MustInputSchema(&CreateVersionInput{}),
			Mutating:         true,
			RefreshOnSuccess: true,
			ContextKey:       "agreementId",
			ContextEntity:    models.EntityAgreement,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[CreateVersionInput](args)
				if err != nil {
					return nil, err
				}
				a, err := svc.CreateAgreementVersion(ctx, in.AgreementID, in.Notes)
				if err != nil {
					return nil, err
				}
				return jsonResult(a, fmt.Sprintf("Created agreement version %d", len(a.Versions)))
			},
		},
		{
			Name:             "contracts.updateTerms",
			Description:      "Merge updated contract terms into the agreement.",
			Schema:           MustInputSchema(&UpdateTermsInput{}),
			Mutating:         true,
			RefreshOnSuccess: true,
			ContextKey:       "agreementId",
			ContextEntity:    models.EntityAgreement,
			Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
				in, err := decode[UpdateTermsInput](args)
				if err != nil {
					return nil, err
				}
				a, err := svc.UpdateAgreementTerms(ctx, in.AgreementID, in.Terms)
				if err != nil {
					return nil, err
				}
				return jsonResult(a, fmt.Sprintf("Updated %d agreement terms", len(in.Terms)))
			},
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func wbsItems(in []WbsItemInput) []domain.WbsItem {
	out := make([]domain.WbsItem, len(in))
	for i, it := range in {
		out[i] = domain.WbsItem{
			ID:          it.ID,
			Title:       it.Title,
			Description: it.Description,
			RoleID:      it.RoleID,
			Hours:       it.Hours,
		}
	}
	return out
}
