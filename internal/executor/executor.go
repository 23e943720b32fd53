// Package executor runs the tool calls emitted by the model through the
// guardrail checks, schema validation, and the registered handlers, and
// shapes every outcome into a well-formed tool-result message.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/internal/guardrails"
	"github.com/haasonsaas/dealdesk/internal/observability"
	"github.com/haasonsaas/dealdesk/internal/tools"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// Execution is the recorded outcome of one tool call: the tool-result
// message for the transcript, any side-effect notes, and the bookkeeping
// the loop needs for refresh and termination decisions.
type Execution struct {
	// Name is the internal dotted tool name, or the raw provider name when
	// resolution failed.
	Name string

	// Call is the originating model request.
	Call models.ToolCall

	// Status classifies the outcome.
	Status models.ToolCallStatus

	// Message is the tool-role result appended to the transcript.
	Message models.Message

	// Notes are system-role side-effect messages, in execution order.
	Notes []models.Message

	// Refresh reports whether this execution should trigger a UI refresh.
	Refresh bool
}

// Succeeded reports whether the call completed without a block or error.
func (e *Execution) Succeeded() bool { return e.Status.State == models.CallSuccess }

// SideEffect runs after a successful tool invocation. Side effects are
// isolated: a panicking or failing side effect is reported as a note and
// never alters the primary tool result.
type SideEffect interface {
	Name() string
	After(ctx context.Context, execCtx models.ExecutionContext, args json.RawMessage, result *tools.Result) (note string, err error)
}

// SideEffectFunc adapts a function to the SideEffect interface.
type SideEffectFunc struct {
	EffectName string
	Fn         func(ctx context.Context, execCtx models.ExecutionContext, args json.RawMessage, result *tools.Result) (string, error)
}

func (s SideEffectFunc) Name() string { return s.EffectName }

func (s SideEffectFunc) After(ctx context.Context, execCtx models.ExecutionContext, args json.RawMessage, result *tools.Result) (string, error) {
	return s.Fn(ctx, execCtx, args, result)
}

// Executor runs one tool call at a time through the full pipeline.
type Executor struct {
	registry    *tools.Registry
	guards      *guardrails.Engine
	metrics     *observability.Metrics
	logger      *slog.Logger
	sideEffects map[string][]SideEffect
}

// New creates an executor. Metrics may be nil.
func New(registry *tools.Registry, guards *guardrails.Engine, metrics *observability.Metrics, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:    registry,
		guards:      guards,
		metrics:     metrics,
		logger:      logger.With("component", "executor"),
		sideEffects: make(map[string][]SideEffect),
	}
}

// RegisterSideEffect attaches a side effect to an internal tool name.
// Effects run in registration order after each successful invocation.
func (e *Executor) RegisterSideEffect(toolName string, effect SideEffect) {
	e.sideEffects[toolName] = append(e.sideEffects[toolName], effect)
}

// Execute runs one tool call. Calls within a turn are executed
// sequentially by the caller; handlers mutate shared domain state and the
// throttle assumes ordered observation.
func (e *Executor) Execute(ctx context.Context, execCtx models.ExecutionContext, call models.ToolCall) Execution {
	start := time.Now()

	name, resolved := e.registry.Resolve(call.Name)
	if !resolved {
		// Some models echo the internal name back untranslated.
		if _, ok := e.registry.Get(call.Name); ok {
			name, resolved = call.Name, true
		}
	}
	if !resolved {
		return e.finish(call, call.Name, start, e.errorResult(call, call.Name,
			fmt.Sprintf("unregistered tool: %s", call.Name), ""))
	}
	def, _ := e.registry.Get(name)

	args, parseErr := parseArguments(call.Arguments)
	if parseErr != nil {
		return e.finish(call, name, start, e.errorResult(call, name,
			"tool arguments are not valid JSON", parseErr.Error()))
	}

	args = injectContextDefaults(def, execCtx, args)

	outcome := e.guards.Check(execCtx, name)
	switch outcome.Decision {
	case guardrails.DecisionBlock:
		return e.finish(call, name, start, e.blockedResult(call, name, outcome.Reason))
	case guardrails.DecisionError:
		return e.finish(call, name, start, e.errorResult(call, name, outcome.Reason, ""))
	}

	if err := def.ValidateArgs(toValidatable(args)); err != nil {
		return e.finish(call, name, start, e.errorResult(call, name,
			fmt.Sprintf("invalid arguments for %s", name), validationDetail(err)))
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return e.finish(call, name, start, e.errorResult(call, name,
			"tool arguments could not be re-encoded", err.Error()))
	}

	result, err := e.invoke(ctx, def, raw)
	if err != nil {
		e.logger.Error("tool handler failed", "tool", name, "error", observability.Redact(err.Error()))
		return e.finish(call, name, start, e.errorResult(call, name, err.Error(), ""))
	}

	exec := Execution{
		Name: name,
		Call: call,
		Status: models.ToolCallStatus{
			Label:   name,
			State:   models.CallSuccess,
			Summary: successSummary(name, result),
		},
	}
	exec.Message = toolMessage(call, name, normalizeDisplay(result), &exec.Status)

	noteReported := e.runSideEffects(ctx, execCtx, def, raw, result, &exec)

	exec.Refresh = noteReported || refreshOnSuccess(def, execCtx)
	return e.finish(call, name, start, exec)
}

// invoke calls the handler with panic isolation.
func (e *Executor) invoke(ctx context.Context, def *tools.Definition, args json.RawMessage) (result *tools.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", def.Name, r)
		}
	}()
	return def.Handler(ctx, args)
}

func (e *Executor) runSideEffects(ctx context.Context, execCtx models.ExecutionContext, def *tools.Definition, args json.RawMessage, result *tools.Result, exec *Execution) bool {
	noteReported := false
	for _, effect := range e.sideEffects[def.Name] {
		note, err := e.runSideEffect(ctx, execCtx, effect, args, result)
		if err != nil {
			e.logger.Warn("side effect failed", "tool", def.Name, "effect", effect.Name(), "error", err)
			exec.Notes = append(exec.Notes, models.Message{
				Role:      models.RoleSystem,
				Content:   fmt.Sprintf("[Side Effect Error] %s: %v", effect.Name(), err),
				CreatedAt: time.Now(),
			})
			continue
		}
		if note != "" {
			noteReported = true
			exec.Notes = append(exec.Notes, models.Message{
				Role:      models.RoleSystem,
				Content:   note,
				CreatedAt: time.Now(),
			})
		}
	}
	return noteReported
}

func (e *Executor) runSideEffect(ctx context.Context, execCtx models.ExecutionContext, effect SideEffect, args json.RawMessage, result *tools.Result) (note string, err error) {
	defer func() {
		if r := recover(); r != nil {
			note = ""
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return effect.After(ctx, execCtx, args, result)
}

func (e *Executor) finish(call models.ToolCall, name string, start time.Time, exec Execution) Execution {
	if e.metrics != nil {
		e.metrics.ToolExecutionCounter.WithLabelValues(name, string(exec.Status.State)).Inc()
		e.metrics.ToolExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	e.logger.Debug("tool executed",
		"tool", name,
		"call_id", call.ID,
		"state", string(exec.Status.State),
		"duration_ms", time.Since(start).Milliseconds())
	return exec
}

func (e *Executor) errorResult(call models.ToolCall, name, summary, detail string) Execution {
	status := models.ToolCallStatus{
		Label:   name,
		State:   models.CallError,
		Summary: summary,
		Detail:  detail,
	}
	content := "Error: " + summary
	if detail != "" {
		content += "\n" + detail
	}
	return Execution{
		Name:    name,
		Call:    call,
		Status:  status,
		Message: toolMessage(call, name, content, &status),
	}
}

func (e *Executor) blockedResult(call models.ToolCall, name, reason string) Execution {
	status := models.ToolCallStatus{
		Label:   name,
		State:   models.CallBlocked,
		Summary: reason,
	}
	return Execution{
		Name:    name,
		Call:    call,
		Status:  status,
		Message: toolMessage(call, name, "Blocked: "+reason, &status),
	}
}

func toolMessage(call models.ToolCall, name, content string, status *models.ToolCallStatus) models.Message {
	statusCopy := *status
	return models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   name,
		Status:     &statusCopy,
		CreatedAt:  time.Now(),
	}
}

// parseArguments decodes the raw argument JSON into a mutable object.
// Empty arguments are treated as an empty object.
func parseArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// injectContextDefaults supplies the active entity ID under the tool's
// conventional argument key when the model omitted it and the context's
// entity type matches.
func injectContextDefaults(def *tools.Definition, execCtx models.ExecutionContext, args map[string]any) map[string]any {
	if def.ContextKey == "" || execCtx.EntityID == "" {
		return args
	}
	if def.ContextEntity != "" && def.ContextEntity != execCtx.EntityType {
		return args
	}
	if _, present := args[def.ContextKey]; present {
		return args
	}
	args[def.ContextKey] = execCtx.EntityID
	return args
}

// toValidatable round-trips through encoding/json types so the schema
// validator sees the same shapes json.Unmarshal would produce.
func toValidatable(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

// validationDetail flattens the validator's structured issues into a
// readable multi-line detail.
func validationDetail(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	out, marshalErr := json.MarshalIndent(ve.DetailedOutput(), "", "  ")
	if marshalErr != nil {
		return ve.Error()
	}
	return string(out)
}

// normalizeDisplay turns a handler result into transcript content: pretty
// JSON when the content parses, raw text otherwise, and a placeholder when
// the handler returned nothing.
func normalizeDisplay(result *tools.Result) string {
	if result == nil || result.Content == "" {
		return "Tool executed successfully."
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(result.Content), "", "  "); err == nil {
		return buf.String()
	}
	return result.Content
}

func successSummary(name string, result *tools.Result) string {
	if result != nil && result.Reason != "" {
		return result.Reason
	}
	return fmt.Sprintf("%s completed", name)
}

// refreshOnSuccess reports whether a successful execution of this tool
// should trigger a UI refresh for the active entity.
func refreshOnSuccess(def *tools.Definition, execCtx models.ExecutionContext) bool {
	if !def.RefreshOnSuccess {
		return false
	}
	if def.MinStage == "" {
		return true
	}
	return domain.Stage(execCtx.Stage).AtLeast(def.MinStage)
}
