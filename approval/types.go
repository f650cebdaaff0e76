package approval

import (
	"encoding/json"
	"time"

	"github.com/wardenhq/warden/model"
)

// Mode is the process-wide policy governing how new approval requests
// are handled. It is owned by one Manager instance, not a global.
type Mode string

const (
	// ModeNormal parks requests with a timeout; on expiry they convert
	// to escalations when a store is configured, otherwise deny.
	ModeNormal Mode = "normal"
	// ModeQueued persists every request immediately and waits for an
	// operator, bounded only by operator action or shutdown.
	ModeQueued Mode = "queued"
	// ModePaused denies every request synchronously.
	ModePaused Mode = "paused"
)

type Behavior string

const (
	Allow Behavior = "allow"
	Deny  Behavior = "deny"
)

type Request struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	ToolName    string          `json:"tool_name"`
	ToolInput   json.RawMessage `json:"tool_input"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Timeout     time.Duration   `json:"timeout_ms"`
	Source      model.Source    `json:"source"`
}

type Response struct {
	RequestID    string          `json:"request_id"`
	Behavior     Behavior        `json:"behavior"`
	Message      string          `json:"message,omitempty"`
	UpdatedInput json.RawMessage `json:"updated_input,omitempty"`
}

// EscalationStore persists approval requests that outlived their
// real-time window. The Manager requires exactly these three operations.
type EscalationStore interface {
	Enqueue(sessionID, toolName string, input json.RawMessage) (*model.EscalationRecord, error)
	Resolve(queueID string, resolution model.EscalationResolution) (*model.EscalationRecord, error)
	ListPending() ([]*model.EscalationRecord, error)
}
