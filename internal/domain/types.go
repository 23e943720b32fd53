package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError describes a domain-level rejection of an update.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Project is the primary entity of the estimates workflow.
type Project struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Client            string    `json:"client,omitempty"`
	Stage             Stage     `json:"stage"`
	ReadOnly          bool      `json:"read_only,omitempty"`
	LinkedAgreementID string    `json:"linked_agreement_id,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// WbsItem is one work-breakdown-structure row of a project estimate.
type WbsItem struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	RoleID      string  `json:"role_id,omitempty"`
	Hours       float64 `json:"hours"`
	Order       int     `json:"order"`
}

// Role is a billable role with an hourly rate.
type Role struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	HourlyRate float64 `json:"hourly_rate"`
}

// QuoteLine is one priced line of a project quote.
type QuoteLine struct {
	RoleID   string  `json:"role_id"`
	RoleName string  `json:"role_name"`
	Hours    float64 `json:"hours"`
	Rate     float64 `json:"rate"`
	Amount   float64 `json:"amount"`
}

// Quote is the priced view of a project's estimate.
type Quote struct {
	ProjectID string      `json:"project_id"`
	Lines     []QuoteLine `json:"lines"`
	Total     float64     `json:"total"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// AgreementVersion is one immutable revision of an agreement document.
type AgreementVersion struct {
	Number    int       `json:"number"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Agreement is the primary entity of the contracts workflow.
type Agreement struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Status    string             `json:"status"`
	Terms     map[string]string  `json:"terms,omitempty"`
	ReadOnly  bool               `json:"read_only,omitempty"`
	Versions  []AgreementVersion `json:"versions,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}
