package provider

import (
	"context"
	"errors"

	"github.com/wardenhq/warden/model"
	"github.com/wardenhq/warden/tooling"
)

// ErrToolsUnsupported reports that the backing model rejected the tool
// schema. Callers may retry the same request once without tools.
var ErrToolsUnsupported = errors.New("model does not support tool calling")

type LLMProvider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Model() ModelInfo
}

// SlotProvider is implemented by providers whose runtime serves one request
// at a time per model. AcquireSlot blocks until the model's slot is free,
// invoking onWait periodically while another session holds it. Every
// successful acquire must be paired with exactly one ReleaseSlot.
type SlotProvider interface {
	AcquireSlot(ctx context.Context, model string, onWait func()) error
	ReleaseSlot(model string)
}

type Request struct {
	SystemPrompt string
	Messages     []model.Message
	Tools        []tooling.ToolDef
}

type Completion struct {
	Content   string
	ToolCalls []model.ToolCall
	Usage     *UsageInfo
}

type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
}

func (u *UsageInfo) CostUSD(info ModelInfo) float64 {
	if u == nil {
		return 0
	}
	return float64(u.PromptTokens)*info.CostPerInputToken + float64(u.CompletionTokens)*info.CostPerOutputToken
}

type ModelInfo struct {
	ID                 string
	Name               string
	MaxOutput          int
	CostPerInputToken  float64
	CostPerOutputToken float64
}
