package bus

import "github.com/wardenhq/warden/model"

type EventType string

// Lifecycle events.
const (
	EventThinking      EventType = "thinking"
	EventSessionExited EventType = "session_exited"
	EventQueueStatus   EventType = "queue_status"
)

// Output events.
const (
	EventAssistant         EventType = "assistant"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventResult            EventType = "result"
	EventPerformance       EventType = "performance"
)

// Control events.
const (
	EventToolStatus EventType = "tool_status"
	EventError      EventType = "error"
	EventSystem     EventType = "system"
)

// Event is immutable once emitted. Only the fields relevant to the
// event's type are set.
type Event struct {
	Type       EventType      `json:"type"`
	Text       string         `json:"text,omitempty"`
	Message    *model.Message `json:"message,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Status     string         `json:"status,omitempty"`
	Iterations int            `json:"iterations,omitempty"`
	CostUSD    float64        `json:"cost_usd,omitempty"`
	Error      string         `json:"error,omitempty"`
}
