package guardrails

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/internal/tools"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	defs := []*tools.Definition{
		{
			Name:        "estimates.getProjectDetail",
			Description: "read project",
			Handler:     func(ctx context.Context, args json.RawMessage) (*tools.Result, error) { return &tools.Result{}, nil },
		},
		{
			Name:        "estimates.updateWbsItems",
			Description: "mutate wbs",
			Mutating:    true,
			MinStage:    domain.StageRequirements,
			Handler:     func(ctx context.Context, args json.RawMessage) (*tools.Result, error) { return &tools.Result{}, nil },
		},
		{
			Name:        "quote.recalculate",
			Description: "mutate quote",
			Mutating:    true,
			MinStage:    domain.StageEffort,
			Handler:     func(ctx context.Context, args json.RawMessage) (*tools.Result, error) { return &tools.Result{}, nil },
		},
		{
			Name:        "contracts.getAgreement",
			Description: "read agreement",
			Handler:     func(ctx context.Context, args json.RawMessage) (*tools.Result, error) { return &tools.Result{}, nil },
		},
	}
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.Name, err)
		}
	}
	return reg
}

func estimatesCtx(stage domain.Stage) models.ExecutionContext {
	return models.ExecutionContext{
		Workflow:   models.WorkflowEstimates,
		EntityID:   "proj-1",
		EntityType: models.EntityProject,
		Stage:      string(stage),
	}
}

func TestCheckUnregisteredTool(t *testing.T) {
	e := NewEngine(testRegistry(t), nil, nil, nil)

	out := e.Check(estimatesCtx(domain.StageQuote), "estimates.doesNotExist")
	if out.Decision != DecisionError {
		t.Fatalf("decision = %v, want DecisionError", out.Decision)
	}
	if out.Err == nil {
		t.Fatal("expected an error for an unregistered tool")
	}
}

func TestCheckWorkflowAllowlist(t *testing.T) {
	e := NewEngine(testRegistry(t), nil, nil, nil)

	// Contracts tools are invisible to the estimates workflow.
	out := e.Check(estimatesCtx(domain.StageQuote), "contracts.getAgreement")
	if out.Decision != DecisionBlock {
		t.Fatalf("decision = %v, want DecisionBlock", out.Decision)
	}

	out = e.Check(estimatesCtx(domain.StageQuote), "estimates.getProjectDetail")
	if !out.Allowed() {
		t.Fatalf("estimates tool blocked in estimates workflow: %s", out.Reason)
	}
}

func TestCheckReadOnlyBlocksMutations(t *testing.T) {
	e := NewEngine(testRegistry(t), nil, nil, nil)

	ctx := estimatesCtx(domain.StageQuote)
	ctx.ReadOnly = true

	if out := e.Check(ctx, "estimates.updateWbsItems"); out.Decision != DecisionBlock {
		t.Fatalf("mutating tool in read-only context: decision = %v, want DecisionBlock", out.Decision)
	}
	if out := e.Check(ctx, "estimates.getProjectDetail"); !out.Allowed() {
		t.Fatalf("read-only tool blocked in read-only context: %s", out.Reason)
	}
}

func TestCheckStageGate(t *testing.T) {
	e := NewEngine(testRegistry(t), nil, nil, nil)

	tests := []struct {
		name  string
		stage domain.Stage
		tool  string
		allow bool
	}{
		{"below gate", domain.StageBusinessCase, "estimates.updateWbsItems", false},
		{"at gate", domain.StageRequirements, "estimates.updateWbsItems", true},
		{"above gate", domain.StageSolution, "estimates.updateWbsItems", true},
		{"quote gate below", domain.StageSolution, "quote.recalculate", false},
		{"quote gate at", domain.StageEffort, "quote.recalculate", true},
		{"ungated at first stage", domain.StageArtifacts, "estimates.getProjectDetail", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Check(estimatesCtx(tt.stage), tt.tool)
			if out.Allowed() != tt.allow {
				t.Errorf("stage %s tool %s: allowed = %v, want %v (%s)",
					tt.stage, tt.tool, out.Allowed(), tt.allow, out.Reason)
			}
		})
	}
}

func TestCheckUnknownStageBlocksGatedTools(t *testing.T) {
	e := NewEngine(testRegistry(t), nil, nil, nil)

	ctx := estimatesCtx("")
	ctx.Stage = "NotAStage"
	if out := e.Check(ctx, "estimates.updateWbsItems"); out.Decision != DecisionBlock {
		t.Fatalf("unknown stage on gated tool: decision = %v, want DecisionBlock", out.Decision)
	}
}

func TestThrottleCeiling(t *testing.T) {
	tw := NewSlidingWindow(time.Minute, 3)
	e := NewEngine(testRegistry(t), nil, tw, nil)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base
	e.SetClock(func() time.Time { return now })

	ctx := estimatesCtx(domain.StageQuote)

	// Calls up to the ceiling pass.
	for i := 0; i < 3; i++ {
		if out := e.Check(ctx, "estimates.updateWbsItems"); !out.Allowed() {
			t.Fatalf("call %d rejected: %s", i+1, out.Reason)
		}
	}

	// The ceiling+1-th call within the window is rejected.
	out := e.Check(ctx, "estimates.updateWbsItems")
	if out.Decision != DecisionError {
		t.Fatalf("decision = %v, want DecisionError", out.Decision)
	}
	var te *ThrottleError
	if !errors.As(out.Err, &te) {
		t.Fatalf("err = %v, want *ThrottleError", out.Err)
	}
	if te.Ceiling != 3 {
		t.Errorf("ceiling = %d, want 3", te.Ceiling)
	}
	if te.RetryAfter <= 0 || te.RetryAfter > time.Minute {
		t.Errorf("retry after = %v, want within (0, 1m]", te.RetryAfter)
	}

	// Other tools and other entities keep their own counters.
	if out := e.Check(ctx, "quote.recalculate"); !out.Allowed() {
		t.Fatalf("independent tool rejected: %s", out.Reason)
	}
	other := ctx
	other.EntityID = "proj-2"
	if out := e.Check(other, "estimates.updateWbsItems"); !out.Allowed() {
		t.Fatalf("independent entity rejected: %s", out.Reason)
	}

	// After the window elapses the counter resets.
	now = base.Add(time.Minute + time.Second)
	if out := e.Check(ctx, "estimates.updateWbsItems"); !out.Allowed() {
		t.Fatalf("call after window elapsed rejected: %s", out.Reason)
	}
}

func TestThrottleSkipsReadsAndEmptyEntity(t *testing.T) {
	tw := NewSlidingWindow(time.Minute, 1)
	e := NewEngine(testRegistry(t), nil, tw, nil)

	ctx := estimatesCtx(domain.StageQuote)

	// Read-only tools are never throttled.
	for i := 0; i < 5; i++ {
		if out := e.Check(ctx, "estimates.getProjectDetail"); !out.Allowed() {
			t.Fatalf("read call %d rejected: %s", i+1, out.Reason)
		}
	}

	// No entity means no throttle key.
	ctx.EntityID = ""
	for i := 0; i < 5; i++ {
		if out := e.Check(ctx, "estimates.updateWbsItems"); !out.Allowed() {
			t.Fatalf("entity-less call %d rejected: %s", i+1, out.Reason)
		}
	}
}

func TestVisible(t *testing.T) {
	reg := testRegistry(t)
	e := NewEngine(reg, nil, nil, nil)

	ctx := estimatesCtx(domain.StageArtifacts)
	mutating, _ := reg.Get("estimates.updateWbsItems")
	read, _ := reg.Get("estimates.getProjectDetail")
	foreign, _ := reg.Get("contracts.getAgreement")

	if !e.Visible(ctx, mutating) {
		t.Error("mutating tool should be visible in a writable context")
	}
	if e.Visible(ctx, foreign) {
		t.Error("contracts tool should not be visible in the estimates workflow")
	}

	ctx.ReadOnly = true
	if e.Visible(ctx, mutating) {
		t.Error("mutating tool should be hidden in a read-only context")
	}
	if !e.Visible(ctx, read) {
		t.Error("read tool should stay visible in a read-only context")
	}
}
