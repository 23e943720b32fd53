package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryService is an in-memory Service implementation. It backs the CLI's
// demo mode and the package tests; production deployments swap in a store
// backed by the application database.
type MemoryService struct {
	mu         sync.RWMutex
	projects   map[string]*Project
	wbs        map[string][]WbsItem
	roles      []Role
	quotes     map[string]*Quote
	agreements map[string]*Agreement
}

// NewMemoryService creates an empty in-memory service.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		projects:   make(map[string]*Project),
		wbs:        make(map[string][]WbsItem),
		quotes:     make(map[string]*Quote),
		agreements: make(map[string]*Agreement),
	}
}

// Seed installs fixture data: two roles, one project at the given stage, and
// one agreement.
func (s *MemoryService) Seed(projectID, agreementID string, stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.roles = []Role{
		{ID: "role-eng", Name: "Engineer", HourlyRate: 145},
		{ID: "role-pm", Name: "Project Manager", HourlyRate: 165},
	}
	s.projects[projectID] = &Project{
		ID:        projectID,
		Name:      "Demo Project",
		Client:    "Acme Corp",
		Stage:     stage,
		UpdatedAt: now,
	}
	s.agreements[agreementID] = &Agreement{
		ID:        agreementID,
		Title:     "Master Services Agreement",
		Status:    "draft",
		Terms:     map[string]string{"payment": "net 30"},
		UpdatedAt: now,
	}
}

// AddProject inserts a project, replacing any existing one with the same ID.
func (s *MemoryService) AddProject(p *Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.projects[p.ID] = &cp
}

// AddAgreement inserts an agreement.
func (s *MemoryService) AddAgreement(a *Agreement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.agreements[a.ID] = &cp
}

// SetRoles replaces the role catalog.
func (s *MemoryService) SetRoles(roles []Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = append([]Role(nil), roles...)
}

func (s *MemoryService) GetProject(_ context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryService) UpdateStage(_ context.Context, id string, stage Stage) (*Project, error) {
	if stage.Index() < 0 {
		return nil, &ValidationError{Field: "stage", Message: fmt.Sprintf("unknown stage %q", stage)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	p.Stage = stage
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (s *MemoryService) ListWbsItems(_ context.Context, projectID string) ([]WbsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	items := append([]WbsItem(nil), s.wbs[projectID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	return items, nil
}

func (s *MemoryService) UpsertWbsItems(_ context.Context, projectID string, items []WbsItem) ([]WbsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	existing := s.wbs[projectID]
	byID := make(map[string]int, len(existing))
	for i, it := range existing {
		byID[it.ID] = i
	}
	for _, it := range items {
		if it.Title == "" {
			return nil, &ValidationError{Field: "title", Message: "wbs item title is required"}
		}
		if it.Hours < 0 {
			return nil, &ValidationError{Field: "hours", Message: "hours must not be negative"}
		}
		it.ProjectID = projectID
		if it.ID == "" {
			it.ID = uuid.NewString()
			it.Order = len(existing)
			existing = append(existing, it)
			byID[it.ID] = len(existing) - 1
			continue
		}
		if idx, ok := byID[it.ID]; ok {
			it.Order = existing[idx].Order
			existing[idx] = it
		} else {
			it.Order = len(existing)
			existing = append(existing, it)
			byID[it.ID] = len(existing) - 1
		}
	}
	s.wbs[projectID] = existing
	out := append([]WbsItem(nil), existing...)
	return out, nil
}

func (s *MemoryService) ListRoles(_ context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Role(nil), s.roles...), nil
}

func (s *MemoryService) GetQuote(_ context.Context, projectID string) (*Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[projectID]
	if !ok {
		if _, ok := s.projects[projectID]; !ok {
			return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return &Quote{ProjectID: projectID}, nil
	}
	cp := *q
	cp.Lines = append([]QuoteLine(nil), q.Lines...)
	return &cp, nil
}

func (s *MemoryService) RecalculateQuote(_ context.Context, projectID string) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	rates := make(map[string]Role, len(s.roles))
	for _, r := range s.roles {
		rates[r.ID] = r
	}
	hoursByRole := make(map[string]float64)
	for _, it := range s.wbs[projectID] {
		hoursByRole[it.RoleID] += it.Hours
	}
	q := &Quote{ProjectID: projectID, UpdatedAt: time.Now()}
	roleIDs := make([]string, 0, len(hoursByRole))
	for id := range hoursByRole {
		roleIDs = append(roleIDs, id)
	}
	sort.Strings(roleIDs)
	for _, id := range roleIDs {
		role := rates[id]
		line := QuoteLine{
			RoleID:   id,
			RoleName: role.Name,
			Hours:    hoursByRole[id],
			Rate:     role.HourlyRate,
			Amount:   hoursByRole[id] * role.HourlyRate,
		}
		q.Lines = append(q.Lines, line)
		q.Total += line.Amount
	}
	s.quotes[projectID] = q
	cp := *q
	cp.Lines = append([]QuoteLine(nil), q.Lines...)
	return &cp, nil
}

func (s *MemoryService) GetAgreement(_ context.Context, id string) (*Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agreements[id]
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", id, ErrNotFound)
	}
	cp := *a
	cp.Versions = append([]AgreementVersion(nil), a.Versions...)
	return &cp, nil
}

func (s *MemoryService) ListAgreements(_ context.Context) ([]Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agreement, 0, len(s.agreements))
	for _, a := range s.agreements {
		cp := *a
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryService) CreateAgreementVersion(_ context.Context, id string, notes string) (*Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agreements[id]
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", id, ErrNotFound)
	}
	if a.ReadOnly {
		return nil, &ValidationError{Field: "agreement", Message: "agreement is read-only"}
	}
	a.Versions = append(a.Versions, AgreementVersion{
		Number:    len(a.Versions) + 1,
		Notes:     notes,
		CreatedAt: time.Now(),
	})
	a.UpdatedAt = time.Now()
	cp := *a
	cp.Versions = append([]AgreementVersion(nil), a.Versions...)
	return &cp, nil
}

func (s *MemoryService) UpdateAgreementTerms(_ context.Context, id string, terms map[string]string) (*Agreement, error) {
	if len(terms) == 0 {
		return nil, &ValidationError{Field: "terms", Message: "terms must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agreements[id]
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", id, ErrNotFound)
	}
	if a.ReadOnly {
		return nil, &ValidationError{Field: "agreement", Message: "agreement is read-only"}
	}
	if a.Terms == nil {
		a.Terms = make(map[string]string, len(terms))
	}
	for k, v := range terms {
		a.Terms[k] = v
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}
