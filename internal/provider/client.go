// Package provider implements the chat-completion client used by the agent
// loop. It speaks the OpenAI-compatible chat/completions protocol, validates
// response shape, classifies upstream failures, and retries transient errors
// with exponential backoff.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/dealdesk/internal/observability"
	"github.com/haasonsaas/dealdesk/internal/retry"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

const (
	// DefaultMaxTokens is the default output token budget per completion.
	DefaultMaxTokens = 2048

	// maxEscalatedTokens caps token-budget escalation on truncated output.
	maxEscalatedTokens = 16384

	// DefaultTimeout is the hard wall-clock timeout per attempt.
	DefaultTimeout = 60 * time.Second
)

// Config holds the provider connection settings.
type Config struct {
	// APIKey is required; its absence is a hard configuration error.
	APIKey string

	// BaseURL is the OpenAI-compatible endpoint root.
	BaseURL string

	// Model is the chat model identifier.
	Model string

	// RequestTimeout is the per-attempt wall-clock timeout.
	RequestTimeout time.Duration

	// MaxTokens is the default output token budget.
	MaxTokens int

	// Retry configures transient-failure retries.
	Retry retry.Config
}

// ToolSpec is one entry of the provider-facing tool list.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolChoice constrains how the model may select tools.
type ToolChoice struct {
	// Mode is "auto", "none", or "function".
	Mode string
	// Function names the forced function when Mode is "function".
	Function string
}

// Request is a single chat-completion request.
type Request struct {
	System         string
	Messages       []models.Message
	Tools          []ToolSpec
	ToolChoice     *ToolChoice
	MaxTokens      int
	Temperature    float32
	ResponseFormat string // "" or "json_object"
}

// Response is the normalized completion result.
type Response struct {
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
	Raw          *openai.ChatCompletionResponse
}

// Client sends chat-completion requests to the configured endpoint.
// Safe for concurrent use.
type Client struct {
	api       *openai.Client
	model     string
	timeout   time.Duration
	maxTokens int
	retryCfg  retry.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewClient builds a client from config. A missing API key fails here,
// before any network call.
func NewClient(cfg Config, logger *slog.Logger, metrics *observability.Metrics) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Kind: KindConfig, Message: "provider API key is not configured"}
	}
	if cfg.Model == "" {
		return nil, &Error{Kind: KindConfig, Message: "provider model is not configured"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &Client{
		api:       openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		timeout:   cfg.RequestTimeout,
		maxTokens: cfg.MaxTokens,
		retryCfg:  cfg.Retry,
		logger:    logger.With("component", "provider"),
		metrics:   metrics,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Complete sends one chat-completion request. Transient failures (429, 5xx,
// network) are retried with backoff; everything else surfaces immediately.
// When the model truncates an empty response (finish_reason "length"), the
// token budget is doubled once and the request reissued.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	for {
		resp, err := c.completeOnce(ctx, req, maxTokens)
		if err != nil {
			return nil, err
		}

		// Truncated with nothing usable: escalate the budget once per
		// doubling up to the cap.
		if resp.FinishReason == string(openai.FinishReasonLength) &&
			resp.Content == "" && len(resp.ToolCalls) == 0 && maxTokens < maxEscalatedTokens {
			escalated := maxTokens * 2
			if escalated > maxEscalatedTokens {
				escalated = maxEscalatedTokens
			}
			c.logger.Warn("completion truncated with empty output, escalating token budget",
				"model", c.model, "from", maxTokens, "to", escalated)
			maxTokens = escalated
			continue
		}
		return resp, nil
	}
}

func (c *Client) completeOnce(ctx context.Context, req *Request, maxTokens int) (*Response, error) {
	chatReq, err := c.buildRequest(req, maxTokens)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, result := retry.DoWithValue(ctx, c.retryCfg, func(attempt int) (openai.ChatCompletionResponse, error) {
		if attempt > 1 {
			c.logger.Warn("retrying provider call", "model", c.model, "attempt", attempt)
			if c.metrics != nil {
				c.metrics.LLMRetries.WithLabelValues(c.model).Inc()
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		r, callErr := c.api.CreateChatCompletion(attemptCtx, chatReq)
		if callErr != nil {
			perr := c.classify(callErr, ctx)
			if !perr.Kind.Retryable() {
				return r, retry.Permanent(perr)
			}
			return r, perr
		}
		return r, nil
	})

	if c.metrics != nil {
		c.metrics.LLMRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	}

	if result.Err != nil {
		if c.metrics != nil {
			c.metrics.LLMRequestCounter.WithLabelValues(c.model, "error").Inc()
		}
		if perr, ok := AsError(result.Err); ok {
			return nil, perr
		}
		return nil, &Error{Kind: KindUnknown, Message: result.Err.Error(), Cause: result.Err}
	}

	if len(resp.Choices) == 0 {
		raw, _ := json.Marshal(resp)
		if c.metrics != nil {
			c.metrics.LLMRequestCounter.WithLabelValues(c.model, "error").Inc()
		}
		return nil, &Error{
			Kind:    KindServer,
			Message: "provider response contained no choices",
			Raw:     observability.Redact(string(raw)),
		}
	}
	if c.metrics != nil {
		c.metrics.LLMRequestCounter.WithLabelValues(c.model, "success").Inc()
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      extractContent(choice.Message),
		FinishReason: string(choice.FinishReason),
		Raw:          &resp,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (c *Client) buildRequest(req *Request, maxTokens int) (openai.ChatCompletionRequest, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.ResponseFormat == "json_object" {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case models.RoleAssistant:
			for _, tc := range m.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
		case models.RoleTool:
			oaiMsg.ToolCallID = m.ToolCallID
			oaiMsg.Name = m.ToolName
		}
		chatReq.Messages = append(chatReq.Messages, oaiMsg)
	}
	if len(chatReq.Messages) == 0 {
		return chatReq, &Error{Kind: KindBadRequest, Message: "request contains no messages"}
	}

	for _, t := range req.Tools {
		var params map[string]any
		if err := json.Unmarshal(t.Parameters, &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case "auto", "none":
			chatReq.ToolChoice = req.ToolChoice.Mode
		case "function":
			chatReq.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice.Function},
			}
		}
	}

	return chatReq, nil
}

// classify maps transport and API errors to the provider error taxonomy.
// A deadline on the caller's context wins over the per-attempt timeout.
func (c *Client) classify(err error, callerCtx context.Context) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := classifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
		perr.Cause = err
		return perr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		perr := classifyStatus(reqErr.HTTPStatusCode, reqErr.Error())
		perr.Cause = err
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		msg := fmt.Sprintf("provider call timed out after %v", c.timeout)
		if callerCtx.Err() != nil {
			msg = "provider call aborted: " + callerCtx.Err().Error()
		}
		return &Error{Kind: KindConnection, Message: msg, Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindConnection, Message: "provider call canceled", Cause: err}
	}
	return &Error{Kind: KindConnection, Message: err.Error(), Cause: err}
}

// extractContent collapses the message content to a single string. Tolerates
// plain string content and array-of-parts payloads.
func extractContent(msg openai.ChatCompletionMessage) string {
	if msg.Content != "" {
		return msg.Content
	}
	if len(msg.MultiContent) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
