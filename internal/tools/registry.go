// Package tools defines the static tool catalog the model may invoke and the
// registry that maps between internal dotted names and provider-safe names.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// Result is a tool handler's output. Content is usually JSON-encoded; Raw
// optionally carries the structured payload; Reason is an optional
// human-readable completion summary.
type Result struct {
	Content string
	Raw     any
	Reason  string
}

// Handler executes a tool with already-validated arguments.
type Handler func(ctx context.Context, args json.RawMessage) (*Result, error)

// Definition is one immutable registry entry.
type Definition struct {
	// Name is the internal dotted name, e.g. "estimates.generateWbsItems".
	Name string

	// SafeName is computed at registration; collisions fail Build.
	SafeName string

	// Description is shown to the model.
	Description string

	// Schema is the JSON Schema for the tool's input.
	Schema json.RawMessage

	// Handler executes the tool.
	Handler Handler

	// Mutating marks tools subject to the sliding-window throttle.
	Mutating bool

	// RefreshOnSuccess marks tools whose success should refresh the UI.
	RefreshOnSuccess bool

	// MinStage is the minimum entity stage required before the tool may run.
	// Empty means ungated.
	MinStage domain.Stage

	// ContextKey names the argument ("projectId" or "agreementId") that
	// receives the active entity ID when the model omits it.
	ContextKey string

	// ContextEntity is the entity type ContextKey injection applies to.
	ContextEntity models.EntityType

	compiled *jsonschema.Schema
}

// ValidateArgs validates decoded arguments against the tool's schema.
func (d *Definition) ValidateArgs(decoded any) error {
	if d.compiled == nil {
		return nil
	}
	return d.compiled.Validate(decoded)
}

// Registry is the static tool catalog, built once at process start and
// read-only thereafter.
type Registry struct {
	byName map[string]*Definition
	bySafe map[string]string
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Definition),
		bySafe: make(map[string]string),
	}
}

// Register adds a definition, computing its provider-safe name and compiling
// its schema. Name or safe-name collisions are configuration errors.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}
	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("tool name collision: %s already registered", def.Name)
	}

	def.SafeName = ProviderSafeName(def.Name)
	if existing, exists := r.bySafe[def.SafeName]; exists {
		return fmt.Errorf("provider-safe name collision: %s and %s both map to %s",
			existing, def.Name, def.SafeName)
	}

	if len(def.Schema) > 0 {
		compiled, err := jsonschema.CompileString(def.SafeName+".schema.json", string(def.Schema))
		if err != nil {
			return fmt.Errorf("tool %s: invalid schema: %w", def.Name, err)
		}
		def.compiled = compiled
	}

	r.byName[def.Name] = def
	r.bySafe[def.SafeName] = def.Name
	r.order = append(r.order, def.Name)
	return nil
}

// Get returns a definition by internal name.
func (r *Registry) Get(name string) (*Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Resolve maps a provider-safe name back to the internal name.
func (r *Registry) Resolve(safeName string) (string, bool) {
	name, ok := r.bySafe[safeName]
	return name, ok
}

// Names returns all internal names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ProviderEntry is one element of the provider-facing tool list.
type ProviderEntry struct {
	SafeName    string
	Description string
	Parameters  json.RawMessage
}

// ListForProvider returns the provider-facing entries for every tool the
// filter admits (nil filter admits all), sorted by internal name for a
// stable provider payload.
func (r *Registry) ListForProvider(filter func(*Definition) bool) []ProviderEntry {
	names := append([]string(nil), r.order...)
	sort.Strings(names)

	out := make([]ProviderEntry, 0, len(names))
	for _, name := range names {
		def := r.byName[name]
		if filter != nil && !filter(def) {
			continue
		}
		params := def.Schema
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, ProviderEntry{
			SafeName:    def.SafeName,
			Description: def.Description,
			Parameters:  params,
		})
	}
	return out
}
