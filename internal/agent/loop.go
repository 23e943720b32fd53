// Package agent runs the bounded tool-calling loop: it windows the
// conversation, calls the provider with the workflow's tool list, executes
// the returned tool calls, and finalizes the transcript with a closing
// assistant message.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/dealdesk/internal/executor"
	"github.com/haasonsaas/dealdesk/internal/guardrails"
	"github.com/haasonsaas/dealdesk/internal/observability"
	"github.com/haasonsaas/dealdesk/internal/provider"
	"github.com/haasonsaas/dealdesk/internal/tools"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// DefaultMaxTurns bounds how many provider round-trips one request may use.
const DefaultMaxTurns = 5

// Provider is the completion surface the loop depends on.
type Provider interface {
	Complete(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// Config tunes one loop instance.
type Config struct {
	// MaxTurns is the provider round-trip ceiling per request.
	// Zero means DefaultMaxTurns.
	MaxTurns int

	// WindowSize bounds the history sent each turn. Zero means
	// DefaultWindowSize.
	WindowSize int

	// Temperature is passed through to the provider.
	Temperature float32
}

// Result is the outcome of one orchestrated request.
type Result struct {
	// Messages is the full transcript: the caller's history plus every
	// assistant, tool, and side-effect message this run produced. The last
	// message is always an assistant message.
	Messages []models.Message

	// ShouldRefresh tells the caller to reload entity data: a mutating tool
	// succeeded at or past its gate stage, or a side effect reported a note.
	ShouldRefresh bool

	// Turns is how many provider round-trips were consumed.
	Turns int
}

// Loop is the per-request orchestrator. Safe for concurrent use; all
// per-request state lives in Run.
type Loop struct {
	cfg      Config
	provider Provider
	registry *tools.Registry
	guards   *guardrails.Engine
	executor *executor.Executor
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewLoop wires the orchestrator. Metrics may be nil.
func NewLoop(cfg Config, p Provider, registry *tools.Registry, guards *guardrails.Engine, exec *executor.Executor, metrics *observability.Metrics, logger *slog.Logger) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:      cfg,
		provider: p,
		registry: registry,
		guards:   guards,
		executor: exec,
		metrics:  metrics,
		logger:   logger.With("component", "agent"),
	}
}

// Run drives the loop for one request. The returned Result always carries a
// well-formed transcript ending in an assistant message, including on
// provider failure; the error reports what went wrong for the caller's
// status handling.
func (l *Loop) Run(ctx context.Context, execCtx models.ExecutionContext, history []models.Message) (*Result, error) {
	messages := append([]models.Message(nil), history...)
	system := BuildSystemPrompt(execCtx)
	toolList := l.providerTools(execCtx)

	res := &Result{}
	var executions []executor.Execution
	allNonSuccess := false

	defer func() {
		res.Messages = messages
		if l.metrics != nil {
			l.metrics.LoopTurns.Observe(float64(res.Turns))
		}
	}()

	for turn := 0; turn < l.cfg.MaxTurns; turn++ {
		res.Turns = turn + 1

		resp, err := l.provider.Complete(ctx, &provider.Request{
			System:      system,
			Messages:    WindowHistory(messages, l.cfg.WindowSize),
			Tools:       toolList,
			Temperature: l.cfg.Temperature,
		})
		if err != nil {
			l.logger.Error("provider call failed", "turn", turn+1, "error", observability.Redact(err.Error()))
			messages = append(messages, assistantMessage(providerFailureNotice(err)))
			return res, err
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content != "" {
				messages = append(messages, assistantMessage(resp.Content))
				return res, nil
			}
			// Silent exhaustion: no calls, no text. Fall through to the
			// finalization ladder.
			break
		}

		messages = append(messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
			CreatedAt: time.Now(),
		})

		turnAllNonSuccess := true
		for _, call := range resp.ToolCalls {
			exec := l.executor.Execute(ctx, execCtx, call)
			executions = append(executions, exec)
			messages = append(messages, exec.Message)
			messages = append(messages, exec.Notes...)
			if exec.Refresh {
				res.ShouldRefresh = true
			}
			if exec.Succeeded() {
				turnAllNonSuccess = false
			}
		}

		// A turn where every call was blocked or errored will not improve
		// by asking the model again.
		if turnAllNonSuccess {
			allNonSuccess = true
			break
		}
	}

	messages = append(messages, assistantMessage(l.finalize(ctx, execCtx, messages, executions, allNonSuccess)))
	return res, nil
}

// finalize produces the closing assistant text. When the loop stopped
// because every call in the last turn failed, the first non-success summary
// is surfaced verbatim without another model call. Otherwise the model gets
// one tool-free completion to summarize; empty output falls back to the
// concatenated tool summaries, then to a generic notice.
func (l *Loop) finalize(ctx context.Context, execCtx models.ExecutionContext, messages []models.Message, executions []executor.Execution, allNonSuccess bool) string {
	if allNonSuccess {
		for _, exec := range executions {
			if !exec.Succeeded() && exec.Status.Summary != "" {
				return exec.Status.Summary
			}
		}
		return genericCompletionNotice
	}

	resp, err := l.provider.Complete(ctx, &provider.Request{
		System:     BuildSystemPrompt(execCtx),
		Messages:   WindowHistory(messages, l.cfg.WindowSize),
		ToolChoice: &provider.ToolChoice{Mode: "none"},
	})
	if err == nil && resp.Content != "" {
		return resp.Content
	}
	if err != nil {
		l.logger.Warn("final summary call failed", "error", observability.Redact(err.Error()))
	}

	if summary := deterministicSummary(executions); summary != "" {
		return summary
	}
	return genericCompletionNotice
}

const genericCompletionNotice = "Done. The requested steps have been carried out."

// providerTools lists the workflow's visible tools in provider form.
func (l *Loop) providerTools(execCtx models.ExecutionContext) []provider.ToolSpec {
	entries := l.registry.ListForProvider(func(def *tools.Definition) bool {
		return l.guards.Visible(execCtx, def)
	})
	specs := make([]provider.ToolSpec, len(entries))
	for i, e := range entries {
		specs[i] = provider.ToolSpec{
			Name:        e.SafeName,
			Description: e.Description,
			Parameters:  e.Parameters,
		}
	}
	return specs
}

// deterministicSummary joins each tool's human summary line.
func deterministicSummary(executions []executor.Execution) string {
	var lines []string
	for _, exec := range executions {
		if exec.Status.Summary != "" {
			lines = append(lines, exec.Status.Summary)
		}
	}
	return strings.Join(lines, "\n")
}

func providerFailureNotice(err error) string {
	if pErr, ok := provider.AsError(err); ok {
		switch pErr.Kind {
		case provider.KindRateLimit:
			return "The language model is currently rate limited. Please try again in a moment."
		case provider.KindAuth, provider.KindConfig:
			return "The assistant is misconfigured and could not reach the language model. Please contact an administrator."
		case provider.KindConnection:
			return "The language model did not respond in time. Please try again."
		}
	}
	return "Something went wrong while talking to the language model. Please try again."
}

func assistantMessage(content string) models.Message {
	return models.Message{
		Role:      models.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
