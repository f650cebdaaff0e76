package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/model"
	"github.com/wardenhq/warden/tooling"
)

const (
	openAIDefaultBaseURL = "http://127.0.0.1:1234/v1"
	openAIDefaultTokens  = 8192
)

// OpenAI talks to any OpenAI-compatible chat-completions endpoint. When the
// backing runtime serves one request at a time (local model servers), the
// single_slot config makes it a SlotProvider over a per-model slot table.
type OpenAI struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
	slots     *SlotTable
}

func NewOpenAI(cfg config.ProviderConfig) *OpenAI {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = openAIDefaultBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = openAIDefaultTokens
	}
	var slots *SlotTable
	if cfg.SingleSlot {
		slots = NewSlotTable()
	}
	return &OpenAI{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: maxTokens,
		client:    &http.Client{},
		slots:     slots,
	}
}

func (o *OpenAI) Model() ModelInfo {
	return ModelInfo{
		ID:        o.model,
		Name:      o.model,
		MaxOutput: o.maxTokens,
	}
}

func (o *OpenAI) AcquireSlot(ctx context.Context, modelID string, onWait func()) error {
	if o.slots == nil {
		return nil
	}
	return o.slots.AcquireSlot(ctx, modelID, onWait)
}

func (o *OpenAI) ReleaseSlot(modelID string) {
	if o.slots == nil {
		return
	}
	o.slots.ReleaseSlot(modelID)
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	payload, err := marshalChatRequest(o.model, o.maxTokens, req)
	if err != nil {
		return nil, err
	}
	resp, err := o.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if len(req.Tools) > 0 && toolsUnsupported(resp.StatusCode, string(body)) {
			return nil, fmt.Errorf("chat completion status %d: %w", resp.StatusCode, ErrToolsUnsupported)
		}
		return nil, statusError(resp.StatusCode, string(body))
	}
	return decodeChatResponse(body)
}

func (o *OpenAI) post(ctx context.Context, payload []byte) (*http.Response, error) {
	return withRetry(ctx, 0, func() (*http.Response, error) {
		return o.doPost(ctx, payload)
	})
}

func (o *OpenAI) doPost(ctx context.Context, payload []byte) (*http.Response, error) {
	u := o.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return o.client.Do(req)
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Tools     []chatTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string          `json:"type"`
	Function tooling.ToolDef `json:"function"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
	Error   *chatError   `json:"error"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatError struct {
	Message string `json:"message"`
}

func marshalChatRequest(modelID string, maxTokens int, req Request) ([]byte, error) {
	body := chatRequest{
		Model:     modelID,
		Messages:  encodeMessages(req.SystemPrompt, req.Messages),
		Tools:     encodeTools(req.Tools),
		MaxTokens: maxTokens,
	}
	return json.Marshal(body)
}

func encodeMessages(systemPrompt string, messages []model.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		msg := chatMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, c := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, chatToolCall{
				ID:   c.ID,
				Type: "function",
				Function: chatFunctionCall{
					Name:      c.Name,
					Arguments: string(c.Arguments),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func encodeTools(tools []tooling.ToolDef) []chatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, chatTool{Type: "function", Function: t})
	}
	return out
}

func decodeChatResponse(body []byte) (*Completion, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode chat completion: %v", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, fmt.Errorf("chat completion failed: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	msg := resp.Choices[0].Message
	c := &Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		c.ToolCalls = append(c.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	if resp.Usage != nil {
		c.Usage = &UsageInfo{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return c, nil
}

func toolsUnsupported(status int, body string) bool {
	if status != http.StatusBadRequest && status != http.StatusNotFound && status != http.StatusUnprocessableEntity {
		return false
	}
	b := strings.ToLower(body)
	if !strings.Contains(b, "tool") && !strings.Contains(b, "function") {
		return false
	}
	return strings.Contains(b, "support") || strings.Contains(b, "enabled")
}

func statusError(status int, body string) error {
	msg := strings.TrimSpace(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		return fmt.Errorf("chat completion failed: status %d", status)
	}
	return fmt.Errorf("chat completion failed: status %d: %s", status, msg)
}
