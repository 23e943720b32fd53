package agent

import "github.com/haasonsaas/dealdesk/pkg/models"

// DefaultWindowSize bounds how many trailing messages are sent to the
// provider each turn.
const DefaultWindowSize = 30

// WindowHistory returns the trailing window of the conversation sized for
// the provider. The window never begins with a tool-role message: the start
// index walks backward until it lands on a non-tool message, so a tool reply
// is always accompanied by the assistant message that requested it. Any tool
// message that still lacks its pairing assistant call inside the window is
// dropped.
func WindowHistory(messages []models.Message, size int) []models.Message {
	if size <= 0 {
		size = DefaultWindowSize
	}

	start := 0
	if len(messages) > size {
		start = len(messages) - size
		for start > 0 && messages[start].Role == models.RoleTool {
			start--
		}
	}
	window := messages[start:]

	// Defensive cleanup for malformed or truncated history: keep a tool
	// message only when an earlier assistant message in the window carries
	// its call ID.
	known := make(map[string]bool)
	out := make([]models.Message, 0, len(window))
	for _, m := range window {
		if m.HasToolCalls() {
			for _, tc := range m.ToolCalls {
				known[tc.ID] = true
			}
		}
		if m.Role == models.RoleTool && !known[m.ToolCallID] {
			continue
		}
		out = append(out, m)
	}
	return out
}
