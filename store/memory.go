package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/model"
)

// MemoryStore is a non-durable EscalationStore for tests and setups that
// run without a database file.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*model.EscalationRecord
	order   []string
}

var _ EscalationStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]*model.EscalationRecord{}}
}

func (s *MemoryStore) Enqueue(sessionID, toolName string, input json.RawMessage) (*model.EscalationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &model.EscalationRecord{
		QueueID:    uuid.NewString(),
		SessionID:  sessionID,
		ToolName:   toolName,
		ToolInput:  append(json.RawMessage(nil), input...),
		Resolution: model.EscalationPending,
		CreatedAt:  time.Now().UTC(),
	}
	s.records[rec.QueueID] = rec
	s.order = append(s.order, rec.QueueID)
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Resolve(queueID string, resolution model.EscalationResolution) (*model.EscalationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[queueID]
	if !ok || rec.Resolution != model.EscalationPending {
		return nil, nil
	}
	rec.Resolution = resolution
	rec.ResolvedAt = time.Now().UTC()
	return cloneRecord(rec), nil
}

func (s *MemoryStore) ListPending() ([]*model.EscalationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.EscalationRecord
	for _, id := range s.order {
		if rec := s.records[id]; rec.Resolution == model.EscalationPending {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func cloneRecord(rec *model.EscalationRecord) *model.EscalationRecord {
	out := *rec
	out.ToolInput = append(json.RawMessage(nil), rec.ToolInput...)
	return &out
}
