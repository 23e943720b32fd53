package domain

import "context"

// ProjectService exposes the estimates-side CRUD operations the tool catalog
// calls into. Implementations return validated domain objects or ErrNotFound
// / *ValidationError.
type ProjectService interface {
	GetProject(ctx context.Context, id string) (*Project, error)
	UpdateStage(ctx context.Context, id string, stage Stage) (*Project, error)

	ListWbsItems(ctx context.Context, projectID string) ([]WbsItem, error)
	UpsertWbsItems(ctx context.Context, projectID string, items []WbsItem) ([]WbsItem, error)

	ListRoles(ctx context.Context) ([]Role, error)

	GetQuote(ctx context.Context, projectID string) (*Quote, error)
	RecalculateQuote(ctx context.Context, projectID string) (*Quote, error)
}

// AgreementService exposes the contracts-side operations.
type AgreementService interface {
	GetAgreement(ctx context.Context, id string) (*Agreement, error)
	ListAgreements(ctx context.Context) ([]Agreement, error)
	CreateAgreementVersion(ctx context.Context, id string, notes string) (*Agreement, error)
	UpdateAgreementTerms(ctx context.Context, id string, terms map[string]string) (*Agreement, error)
}

// Service combines both workflow boundaries.
type Service interface {
	ProjectService
	AgreementService
}
