package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// CallState classifies the outcome of a single tool invocation.
type CallState string

const (
	CallSuccess CallState = "success"
	CallError   CallState = "error"
	CallBlocked CallState = "blocked"
)

// ToolCallStatus carries the human-facing outcome metadata attached to a
// tool-role message so the transcript can distinguish blocked and errored
// calls from successful ones.
type ToolCallStatus struct {
	Label   string    `json:"label"`
	State   CallState `json:"state"`
	Summary string    `json:"summary"`
	Detail  string    `json:"detail,omitempty"`
}

// Succeeded reports whether the call completed without a block or error.
func (s *ToolCallStatus) Succeeded() bool {
	return s != nil && s.State == CallSuccess
}

// ToolCall represents an LLM's request to execute a tool. Name carries the
// provider-safe name exactly as the model emitted it; resolution back to the
// internal dotted name happens in the registry.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one turn in the conversation. Content may be empty for
// assistant messages that only carry tool calls. Every tool-role message
// must be preceded, within the retained window, by an assistant message
// carrying a matching tool-call ID.
type Message struct {
	ID         string          `json:"id,omitempty"`
	Role       Role            `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Status     *ToolCallStatus `json:"status,omitempty"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
}

// IsToolReply reports whether the message is a tool-role result paired with
// an earlier assistant tool call.
func (m *Message) IsToolReply() bool {
	return m.Role == RoleTool
}

// HasToolCalls reports whether the message requests tool execution.
func (m *Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}
