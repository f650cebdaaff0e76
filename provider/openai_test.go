package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/model"
	"github.com/wardenhq/warden/tooling"
)

func chatServer(t *testing.T, capture *[]chatRequest, fn func(http.ResponseWriter, *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		var req chatRequest
		if err := json.Unmarshal(b, &req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		*capture = append(*capture, req)
		fn(w, r)
	}))
}

func chatProvider(baseURL string) *OpenAI {
	return NewOpenAI(config.ProviderConfig{
		BaseURL:   baseURL,
		APIKey:    "test",
		Model:     "qwen2.5",
		MaxTokens: 128,
	})
}

func userMessage(text string) []model.Message {
	return []model.Message{{Role: model.RoleUser, Content: text}}
}

func TestCompleteContent(t *testing.T) {
	var captured []chatRequest
	srv := chatServer(t, &captured, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hello world"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3}}`)
	})
	defer srv.Close()

	c, err := chatProvider(srv.URL).Complete(context.Background(), Request{
		SystemPrompt: "be brief",
		Messages:     userMessage("say hi"),
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if c.Content != "hello world" || len(c.ToolCalls) != 0 {
		t.Fatalf("unexpected completion: %#v", c)
	}
	if c.Usage == nil || c.Usage.PromptTokens != 10 || c.Usage.CompletionTokens != 3 {
		t.Fatalf("unexpected usage: %#v", c.Usage)
	}
	req := captured[0]
	if req.Model != "qwen2.5" || req.MaxTokens != 128 {
		t.Fatalf("unexpected request: %#v", req)
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "be brief" {
		t.Fatalf("system prompt not first: %#v", req.Messages)
	}
}

func TestCompleteToolCalls(t *testing.T) {
	var captured []chatRequest
	srv := chatServer(t, &captured, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{\"path\":\"/tmp/a\"}"}}]},"finish_reason":"tool_calls"}]}`)
	})
	defer srv.Close()

	tools := []tooling.ToolDef{{
		Name:        "read_file",
		Description: "read a file",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}}
	c, err := chatProvider(srv.URL).Complete(context.Background(), Request{Messages: userMessage("read it"), Tools: tools})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(c.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(c.ToolCalls))
	}
	tc := c.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "read_file" || string(tc.Arguments) != `{"path":"/tmp/a"}` {
		t.Fatalf("unexpected tool call: %#v", tc)
	}
	if len(captured[0].Tools) != 1 || captured[0].Tools[0].Function.Name != "read_file" {
		t.Fatalf("tool schema not sent: %#v", captured[0].Tools)
	}
}

func TestCompleteToolsUnsupported(t *testing.T) {
	var captured []chatRequest
	srv := chatServer(t, &captured, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"this model does not support tool use"}}`)
	})
	defer srv.Close()

	tools := []tooling.ToolDef{{Name: "read_file", Parameters: json.RawMessage(`{}`)}}
	_, err := chatProvider(srv.URL).Complete(context.Background(), Request{Messages: userMessage("hi"), Tools: tools})
	if !errors.Is(err, ErrToolsUnsupported) {
		t.Fatalf("expected ErrToolsUnsupported, got %v", err)
	}

	// The same status without tools offered is an ordinary failure.
	_, err = chatProvider(srv.URL).Complete(context.Background(), Request{Messages: userMessage("hi")})
	if err == nil || errors.Is(err, ErrToolsUnsupported) {
		t.Fatalf("expected plain status error, got %v", err)
	}
}

func TestCompleteStatusError(t *testing.T) {
	var captured []chatRequest
	srv := chatServer(t, &captured, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "bad key")
	})
	defer srv.Close()

	_, err := chatProvider(srv.URL).Complete(context.Background(), Request{Messages: userMessage("hi")})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCompleteNoChoices(t *testing.T) {
	var captured []chatRequest
	srv := chatServer(t, &captured, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	defer srv.Close()

	_, err := chatProvider(srv.URL).Complete(context.Background(), Request{Messages: userMessage("hi")})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestEncodeMessagesToolResult(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "call_1", Name: "exec", Arguments: json.RawMessage(`{"command":"ls"}`)}}},
		{Role: model.RoleTool, ToolCallID: "call_1", Content: "file.txt"},
	}
	out := encodeMessages("", msgs)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if len(out[0].ToolCalls) != 1 || out[0].ToolCalls[0].Function.Arguments != `{"command":"ls"}` {
		t.Fatalf("unexpected assistant encoding: %#v", out[0])
	}
	if out[1].Role != "tool" || out[1].ToolCallID != "call_1" {
		t.Fatalf("unexpected tool encoding: %#v", out[1])
	}
}

func TestModelInfoAndCost(t *testing.T) {
	p := chatProvider("http://127.0.0.1:1234/v1")
	m := p.Model()
	if m.ID != "qwen2.5" || m.MaxOutput != 128 {
		t.Fatalf("unexpected model: %#v", m)
	}
	u := &UsageInfo{PromptTokens: 100, CompletionTokens: 50}
	cost := u.CostUSD(ModelInfo{CostPerInputToken: 0.001, CostPerOutputToken: 0.002})
	if cost != 0.1+0.1 {
		t.Fatalf("cost = %v", cost)
	}
}
