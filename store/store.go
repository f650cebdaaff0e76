package store

import (
	"encoding/json"

	"github.com/wardenhq/warden/model"
)

// EscalationStore persists approval requests that escaped their real-time
// approval window, so an operator can resolve them later.
type EscalationStore interface {
	Enqueue(sessionID, toolName string, input json.RawMessage) (*model.EscalationRecord, error)
	Resolve(queueID string, resolution model.EscalationResolution) (*model.EscalationRecord, error)
	ListPending() ([]*model.EscalationRecord, error)
}

var (
	_ EscalationStore = (*SQLiteStore)(nil)
	_ EscalationStore = (*MemoryStore)(nil)
)
