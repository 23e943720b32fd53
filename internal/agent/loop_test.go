package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/internal/executor"
	"github.com/haasonsaas/dealdesk/internal/guardrails"
	"github.com/haasonsaas/dealdesk/internal/provider"
	"github.com/haasonsaas/dealdesk/internal/tools"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// scriptedProvider returns canned responses in order and records every
// request it receives.
type scriptedProvider struct {
	responses []*provider.Response
	err       error
	requests  []*provider.Request
}

func (p *scriptedProvider) Complete(_ context.Context, req *provider.Request) (*provider.Response, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &provider.Response{FinishReason: "stop"}, nil
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func textResponse(content string) *provider.Response {
	return &provider.Response{Content: content, FinishReason: "stop"}
}

func toolResponse(id, name, args string) *provider.Response {
	return &provider.Response{
		ToolCalls:    []models.ToolCall{{ID: id, Name: name, Arguments: json.RawMessage(args)}},
		FinishReason: "tool_calls",
	}
}

func newTestLoop(t *testing.T, stage domain.Stage, p Provider) (*Loop, models.ExecutionContext) {
	t.Helper()

	svc := domain.NewMemoryService()
	svc.Seed("proj-1", "agr-1", stage)

	reg, err := tools.BuildCatalog(svc)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	guards := guardrails.NewEngine(reg, nil, guardrails.NewSlidingWindow(time.Minute, 100), nil)
	exec := executor.New(reg, guards, nil, nil)
	loop := NewLoop(Config{}, p, reg, guards, exec, nil, nil)

	return loop, models.ExecutionContext{
		Workflow:   models.WorkflowEstimates,
		EntityID:   "proj-1",
		EntityType: models.EntityProject,
		Stage:      string(stage),
	}
}

func lastMessage(t *testing.T, res *Result) models.Message {
	t.Helper()
	if len(res.Messages) == 0 {
		t.Fatal("empty transcript")
	}
	return res.Messages[len(res.Messages)-1]
}

func TestRunTextOnlyTerminates(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.Response{textResponse("Hello, how can I help?")}}
	loop, execCtx := newTestLoop(t, domain.StageSolution, p)

	res, err := loop.Run(context.Background(), execCtx, []models.Message{
		{Role: models.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Turns != 1 {
		t.Errorf("turns = %d, want 1", res.Turns)
	}
	last := lastMessage(t, res)
	if last.Role != models.RoleAssistant || last.Content != "Hello, how can I help?" {
		t.Errorf("final message = %+v", last)
	}
	if res.ShouldRefresh {
		t.Error("text-only run must not request a refresh")
	}
}

func TestRunBlockedCallStopsAfterOneTurn(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.Response{
		toolResponse("c1", "estimates_generateWbsItems", `{"items":[{"title":"x","hours":1}]}`),
		textResponse("should never be requested"),
	}}
	loop, execCtx := newTestLoop(t, domain.StageArtifacts, p)

	res, err := loop.Run(context.Background(), execCtx, []models.Message{
		{Role: models.RoleUser, Content: "draft a WBS"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Turns != 1 {
		t.Errorf("turns = %d, want 1 (all calls blocked)", res.Turns)
	}
	if len(p.requests) != 1 {
		t.Errorf("provider requests = %d, want 1 (no summary call after a block)", len(p.requests))
	}

	// Transcript: user, assistant(tool call), tool(blocked), assistant(final).
	var toolMsg *models.Message
	for i := range res.Messages {
		if res.Messages[i].Role == models.RoleTool {
			toolMsg = &res.Messages[i]
		}
	}
	if toolMsg == nil || toolMsg.Status == nil || toolMsg.Status.State != models.CallBlocked {
		t.Fatalf("expected a blocked tool message, got %+v", toolMsg)
	}

	last := lastMessage(t, res)
	if last.Role != models.RoleAssistant {
		t.Fatalf("transcript must end with an assistant message, got %s", last.Role)
	}
	// The block reason is surfaced verbatim without another model call.
	if last.Content != toolMsg.Status.Summary {
		t.Errorf("final content = %q, want the blocked summary %q", last.Content, toolMsg.Status.Summary)
	}
	if res.ShouldRefresh {
		t.Error("blocked run must not request a refresh")
	}
}

func TestRunTurnCapAndSummaryCall(t *testing.T) {
	// The model keeps issuing the same successful read forever.
	p := &scriptedProvider{responses: []*provider.Response{
		toolResponse("c1", "estimates_getProjectDetail", `{}`),
	}}
	loop, execCtx := newTestLoop(t, domain.StageSolution, p)

	res, err := loop.Run(context.Background(), execCtx, []models.Message{
		{Role: models.RoleUser, Content: "keep looking"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Turns != DefaultMaxTurns {
		t.Errorf("turns = %d, want the cap %d", res.Turns, DefaultMaxTurns)
	}
	// Cap turns plus one tool-free summary call.
	if len(p.requests) != DefaultMaxTurns+1 {
		t.Fatalf("provider requests = %d, want %d", len(p.requests), DefaultMaxTurns+1)
	}
	final := p.requests[len(p.requests)-1]
	if final.ToolChoice == nil || final.ToolChoice.Mode != "none" {
		t.Errorf("summary call tool choice = %+v, want none", final.ToolChoice)
	}
	if len(final.Tools) != 0 {
		t.Errorf("summary call carried %d tools, want 0", len(final.Tools))
	}
	last := lastMessage(t, res)
	if last.Role != models.RoleAssistant || last.Content == "" {
		t.Errorf("final message = %+v", last)
	}
}

func TestRunMixedSuccessKeepsLooping(t *testing.T) {
	// Turn one: a success and a block together. Mixed turns do not trigger
	// the early stop; the loop asks the model again.
	p := &scriptedProvider{responses: []*provider.Response{
		{
			ToolCalls: []models.ToolCall{
				{ID: "c1", Name: "estimates_getProjectDetail", Arguments: json.RawMessage(`{}`)},
				{ID: "c2", Name: "estimates_generateWbsItems", Arguments: json.RawMessage(`{"items":[{"title":"x","hours":1}]}`)},
			},
			FinishReason: "tool_calls",
		},
		textResponse("Found the project; drafting is not available yet."),
	}}
	loop, execCtx := newTestLoop(t, domain.StageBusinessCase, p)

	res, err := loop.Run(context.Background(), execCtx, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Turns != 2 {
		t.Errorf("turns = %d, want 2", res.Turns)
	}
	if got := lastMessage(t, res).Content; got != "Found the project; drafting is not available yet." {
		t.Errorf("final content = %q", got)
	}
}

func TestRunSilentExhaustionFallsBackDeterministically(t *testing.T) {
	// One successful tool turn, then the model goes silent, and the summary
	// call is silent too. The deterministic summary takes over.
	p := &scriptedProvider{responses: []*provider.Response{
		toolResponse("c1", "estimates_getProjectDetail", `{}`),
		{FinishReason: "stop"},
		{FinishReason: "stop"},
	}}
	loop, execCtx := newTestLoop(t, domain.StageSolution, p)

	res, err := loop.Run(context.Background(), execCtx, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	last := lastMessage(t, res)
	if last.Role != models.RoleAssistant {
		t.Fatalf("transcript ends with %s", last.Role)
	}
	if !strings.Contains(last.Content, "Demo Project") {
		t.Errorf("final content = %q, want the tool's human summary", last.Content)
	}
}

func TestRunSilentExhaustionWithNoToolsEmitsGenericNotice(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.Response{{FinishReason: "stop"}}}
	loop, execCtx := newTestLoop(t, domain.StageSolution, p)

	res, err := loop.Run(context.Background(), execCtx, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	last := lastMessage(t, res)
	if last.Role != models.RoleAssistant || last.Content == "" {
		t.Fatalf("expected a generic completion notice, got %+v", last)
	}
}

func TestRunShouldRefreshOnSuccessfulMutation(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.Response{
		toolResponse("c1", "estimates_updateWbsItems", `{"items":[{"title":"Discovery","hours":8}]}`),
		textResponse("Updated the work breakdown."),
	}}
	loop, execCtx := newTestLoop(t, domain.StageRequirements, p)

	res, err := loop.Run(context.Background(), execCtx, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.ShouldRefresh {
		t.Error("successful gated mutation should set ShouldRefresh")
	}
}

func TestRunProviderFailureYieldsWellFormedTranscript(t *testing.T) {
	p := &scriptedProvider{err: &provider.Error{Kind: provider.KindRateLimit, Message: "slow down"}}
	loop, execCtx := newTestLoop(t, domain.StageSolution, p)

	res, err := loop.Run(context.Background(), execCtx, []models.Message{
		{Role: models.RoleUser, Content: "hi"},
	})
	if err == nil {
		t.Fatal("expected the provider error to propagate")
	}
	last := lastMessage(t, res)
	if last.Role != models.RoleAssistant || last.Content == "" {
		t.Fatalf("transcript must still end with an assistant message, got %+v", last)
	}
	if !strings.Contains(last.Content, "rate limited") {
		t.Errorf("final content = %q, want a rate-limit notice", last.Content)
	}
}

func TestRunReadOnlyContextHidesMutatingTools(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
	loop, execCtx := newTestLoop(t, domain.StageSolution, p)
	execCtx.ReadOnly = true

	if _, err := loop.Run(context.Background(), execCtx, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(p.requests) != 1 {
		t.Fatalf("requests = %d", len(p.requests))
	}
	for _, spec := range p.requests[0].Tools {
		switch spec.Name {
		case "estimates_generateWbsItems", "estimates_updateWbsItems", "estimates_advanceStage", "quote_recalculate":
			t.Errorf("mutating tool %s offered in a read-only context", spec.Name)
		}
	}
}
