package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/dealdesk/internal/retry"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

func testRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		Model:          "gpt-test",
		RequestTimeout: 5 * time.Second,
		Retry:          testRetryConfig(),
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func completionJSON(content, finishReason string) string {
	payload := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-test",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": finishReason,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func userMessages() []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: "hello"}}
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(Config{Model: "gpt-test"}, nil, nil)
	perr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if perr.Kind != KindConfig {
		t.Errorf("expected config kind, got %s", perr.Kind)
	}
}

func TestComplete_Text(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON("hi there", "stop")))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Complete(context.Background(), &Request{Messages: userMessages()})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hi there" {
		t.Errorf("expected content, got %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected stop, got %q", resp.FinishReason)
	}
}

func TestComplete_ToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-2", "object": "chat.completion", "created": 1700000000, "model": "gpt-test",
			"choices": [{
				"index": 0, "finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1", "type": "function",
						"function": {"name": "estimates_getProjectDetail", "arguments": "{\"projectId\":\"p1\"}"}
					}]
				}
			}]
		}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Complete(context.Background(), &Request{Messages: userMessages()})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "estimates_getProjectDetail" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
}

func TestComplete_RetriesOn503(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n <= 2 {
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON("recovered", "stop")))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Complete(context.Background(), &Request{Messages: userMessages()})
	if err != nil {
		t.Fatalf("Complete after retries: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("expected recovered payload, got %q", resp.Content)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 2 retries (3 requests), got %d requests", hits.Load())
	}
}

func TestComplete_AuthNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Complete(context.Background(), &Request{Messages: userMessages()})
	perr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if perr.Kind != KindAuth {
		t.Errorf("expected auth kind, got %s", perr.Kind)
	}
	if hits.Load() != 1 {
		t.Errorf("auth errors must not be retried, got %d requests", hits.Load())
	}
}

func TestComplete_NotFoundHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"message": "model not found", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Complete(context.Background(), &Request{Messages: userMessages()})
	perr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if perr.Kind != KindBadRequest {
		t.Errorf("expected bad_request kind, got %s", perr.Kind)
	}
}

func TestComplete_EmptyChoicesIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-3", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Complete(context.Background(), &Request{Messages: userMessages()})
	perr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if perr.Kind != KindServer {
		t.Errorf("expected server kind, got %s", perr.Kind)
	}
	if perr.Raw == "" {
		t.Error("expected raw payload preserved for diagnostics")
	}
}

func TestComplete_TokenEscalationOnTruncation(t *testing.T) {
	var budgets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MaxTokens int `json:"max_tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		budgets = append(budgets, req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		if len(budgets) == 1 {
			_, _ = w.Write([]byte(completionJSON("", "length")))
			return
		}
		_, _ = w.Write([]byte(completionJSON("full answer", "stop")))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Complete(context.Background(), &Request{Messages: userMessages(), MaxTokens: 256})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "full answer" {
		t.Errorf("expected escalated retry result, got %q", resp.Content)
	}
	if len(budgets) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(budgets))
	}
	if budgets[1] != 512 {
		t.Errorf("expected doubled budget 512, got %d", budgets[1])
	}
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON("late", "stop")))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		Model:          "gpt-test",
		RequestTimeout: 20 * time.Millisecond,
		Retry:          retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.Complete(context.Background(), &Request{Messages: userMessages()})
	perr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if perr.Kind != KindConnection {
		t.Errorf("expected connection kind on timeout, got %s", perr.Kind)
	}
}
