package model

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleTool      Role = "tool"
)

// Source identifies the channel a session (or an input) originated from.
// Relay and API channels tolerate long response latency; interactive ones
// do not.
type Source string

const (
	SourceInteractive Source = "interactive"
	SourceRelay       Source = "relay"
	SourceAPI         Source = "api"
)

type PermissionMode string

const (
	// PermissionGated submits every mutating tool call for approval.
	PermissionGated PermissionMode = "gated"
	// PermissionBypass skips the approval workflow. Protected-path
	// enforcement still applies.
	PermissionBypass PermissionMode = "bypass"
)

type Session struct {
	ID             string         `json:"id"`
	WorkingDir     string         `json:"working_dir"`
	Source         Source         `json:"source"`
	PermissionMode PermissionMode `json:"permission_mode"`
	RoleTag        string         `json:"role_tag,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry in a session's conversation history. Assistant
// messages may carry tool calls; tool messages carry the result for one
// call, keyed by ToolCallID.
type Message struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type EscalationResolution string

const (
	EscalationPending  EscalationResolution = "pending"
	EscalationApproved EscalationResolution = "approved"
	EscalationDenied   EscalationResolution = "denied"
)

// EscalationRecord is an approval request persisted for an operator to
// resolve outside the real-time approval window.
type EscalationRecord struct {
	QueueID    string               `json:"queue_id"`
	SessionID  string               `json:"session_id"`
	ToolName   string               `json:"tool_name"`
	ToolInput  json.RawMessage      `json:"tool_input"`
	Resolution EscalationResolution `json:"resolution"`
	CreatedAt  time.Time            `json:"created_at"`
	ResolvedAt time.Time            `json:"resolved_at,omitzero"`
}
