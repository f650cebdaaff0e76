package approval

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/model"
)

type fakeStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]*model.EscalationRecord
	fail    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*model.EscalationRecord{}}
}

func (s *fakeStore) Enqueue(sessionID, toolName string, input json.RawMessage) (*model.EscalationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("store unavailable")
	}
	s.seq++
	rec := &model.EscalationRecord{
		QueueID:    fmt.Sprintf("esc-%04d", s.seq),
		SessionID:  sessionID,
		ToolName:   toolName,
		ToolInput:  input,
		Resolution: model.EscalationPending,
		CreatedAt:  time.Now().UTC(),
	}
	s.records[rec.QueueID] = rec
	return rec, nil
}

func (s *fakeStore) Resolve(queueID string, resolution model.EscalationResolution) (*model.EscalationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[queueID]
	if !ok || rec.Resolution != model.EscalationPending {
		return nil, nil
	}
	rec.Resolution = resolution
	rec.ResolvedAt = time.Now().UTC()
	return rec, nil
}

func (s *fakeStore) ListPending() ([]*model.EscalationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.EscalationRecord
	for _, rec := range s.records {
		if rec.Resolution == model.EscalationPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) resolution(queueID string) model.EscalationResolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[queueID]; ok {
		return rec.Resolution
	}
	return ""
}

func newRequest(id, sessionID string, timeout time.Duration) Request {
	return Request{
		ID:        id,
		SessionID: sessionID,
		ToolName:  "exec",
		ToolInput: json.RawMessage(`{"command":"ls"}`),
		Timeout:   timeout,
		Source:    model.SourceInteractive,
	}
}

func TestPausedModeDeniesSynchronously(t *testing.T) {
	m := NewManager(nil)
	m.SetMode(ModePaused)

	result, err := m.CreateRequest(newRequest("req-1", "s1", time.Minute), "")
	require.NoError(t, err)

	select {
	case resp := <-result:
		require.Equal(t, Deny, resp.Behavior)
	default:
		t.Fatal("paused mode must resolve synchronously")
	}
	require.False(t, m.HasPending())
	require.Empty(t, m.QueuedRequests())
}

func TestQueuedModeParksOnStore(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)
	m.SetMode(ModeQueued)

	result, err := m.CreateRequest(newRequest("req-1", "s1", time.Minute), "")
	require.NoError(t, err)

	require.False(t, m.HasPending())
	queued := m.QueuedRequests()
	require.Len(t, queued, 1)
	require.Equal(t, "esc-0001", queued[0].ID)

	require.True(t, m.Resolve("esc-0001", Response{Behavior: Allow}))
	resp := <-result
	require.Equal(t, Allow, resp.Behavior)
	require.Equal(t, "esc-0001", resp.RequestID)
	require.Equal(t, model.EscalationApproved, store.resolution("esc-0001"))
}

func TestNormalModeTimeoutDeniesWithoutStore(t *testing.T) {
	m := NewManager(nil)

	result, err := m.CreateRequest(newRequest("req-1", "s1", 30*time.Millisecond), "")
	require.NoError(t, err)

	select {
	case resp := <-result:
		require.Equal(t, Deny, resp.Behavior)
		require.Equal(t, "Approval timed out", resp.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not time out")
	}
	require.False(t, m.HasPending())
}

func TestNormalModeTimeoutEscalatesWithStore(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)

	result, err := m.CreateRequest(newRequest("req-1", "s1", 20*time.Millisecond), "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(m.QueuedRequests()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, m.HasPending())

	// The deferred response is still parked; the loop keeps waiting.
	select {
	case <-result:
		t.Fatal("escalated request must not resolve until the operator acts")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, m.Resolve(m.QueuedRequests()[0].ID, Response{Behavior: Deny, Message: "no"}))
	resp := <-result
	require.Equal(t, Deny, resp.Behavior)
	require.Equal(t, model.EscalationDenied, store.resolution("esc-0001"))
}

func TestResolveUnknownIDReturnsFalse(t *testing.T) {
	m := NewManager(nil)
	require.False(t, m.Resolve("nope", Response{Behavior: Allow}))

	result, err := m.CreateRequest(newRequest("req-1", "s1", time.Minute), "")
	require.NoError(t, err)
	require.True(t, m.Resolve("req-1", Response{Behavior: Allow}))
	require.False(t, m.Resolve("req-1", Response{Behavior: Deny}), "second resolve must be a no-op")

	resp := <-result
	require.Equal(t, Allow, resp.Behavior)
}

func TestResolveByShortIDPrefixAndCase(t *testing.T) {
	m := NewManager(nil)
	_, err := m.CreateRequest(newRequest("ABCDEF-1234", "s1", time.Minute), "")
	require.NoError(t, err)

	require.True(t, m.ResolveByShortID("abcd", Response{Behavior: Allow}, ""))
	require.False(t, m.HasPending())
}

func TestResolveByShortIDAmbiguousPrefix(t *testing.T) {
	m := NewManager(nil)
	_, err := m.CreateRequest(newRequest("aa-1", "s1", time.Minute), "")
	require.NoError(t, err)
	_, err = m.CreateRequest(newRequest("aa-2", "s1", time.Minute), "")
	require.NoError(t, err)

	require.False(t, m.ResolveByShortID("aa", Response{Behavior: Allow}, ""))
	require.True(t, m.HasPending())
}

func TestResolveByShortIDSenderBinding(t *testing.T) {
	m := NewManager(nil)
	result, err := m.CreateRequest(newRequest("req-1", "s1", time.Minute), "+155500001")
	require.NoError(t, err)

	require.False(t, m.ResolveByShortID("req", Response{Behavior: Allow}, "+155509999"),
		"mismatched sender must fail closed")
	require.True(t, m.HasPending())

	require.True(t, m.ResolveByShortID("req", Response{Behavior: Allow}, "+155500001"))
	resp := <-result
	require.Equal(t, Allow, resp.Behavior)
}

func TestSetSenderAddressAfterCreation(t *testing.T) {
	m := NewManager(nil)
	_, err := m.CreateRequest(newRequest("req-1", "s1", time.Minute), "")
	require.NoError(t, err)

	require.True(t, m.SetSenderAddress("req-1", "ops@example"))
	require.False(t, m.SetSenderAddress("unknown", "ops@example"))

	require.False(t, m.ResolveByShortID("req", Response{Behavior: Allow}, "someone-else"))
	require.True(t, m.ResolveByShortID("req", Response{Behavior: Allow}, "ops@example"))
}

func TestCancelSessionScopedDenials(t *testing.T) {
	m := NewManager(nil)
	doomed, err := m.CreateRequest(newRequest("req-1", "s1", time.Minute), "")
	require.NoError(t, err)
	safe, err := m.CreateRequest(newRequest("req-2", "s2", time.Minute), "")
	require.NoError(t, err)

	m.CancelSession("s1")

	resp := <-doomed
	require.Equal(t, Deny, resp.Behavior)
	require.Equal(t, "Session stopped", resp.Message)

	select {
	case <-safe:
		t.Fatal("other session's request must be untouched")
	default:
	}
	require.Len(t, m.PendingForSession("s2"), 1)
}

func TestShutdownDeniesEverythingAndIsIdempotent(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)
	pending, err := m.CreateRequest(newRequest("req-1", "s1", time.Minute), "")
	require.NoError(t, err)
	m.SetMode(ModeQueued)
	parked, err := m.CreateRequest(newRequest("req-2", "s2", time.Minute), "")
	require.NoError(t, err)

	m.Shutdown()
	m.Shutdown()

	for _, ch := range []<-chan Response{pending, parked} {
		resp := <-ch
		require.Equal(t, Deny, resp.Behavior)
		require.Equal(t, "Server shutting down", resp.Message)
	}
	require.False(t, m.HasPending())
	require.Empty(t, m.QueuedRequests())

	// New requests after shutdown resolve deny immediately.
	late, err := m.CreateRequest(newRequest("req-3", "s3", time.Minute), "")
	require.NoError(t, err)
	resp := <-late
	require.Equal(t, Deny, resp.Behavior)
}

func TestDefaultTimeoutPerSource(t *testing.T) {
	m := NewManager(nil)
	require.Greater(t, m.DefaultTimeout(model.SourceRelay), m.DefaultTimeout(model.SourceInteractive))
	require.Greater(t, m.DefaultTimeout(model.SourceAPI), m.DefaultTimeout(model.SourceInteractive))
}

func TestExplicitResolveCancelsTimer(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)
	result, err := m.CreateRequest(newRequest("req-1", "s1", 40*time.Millisecond), "")
	require.NoError(t, err)

	require.True(t, m.Resolve("req-1", Response{Behavior: Allow}))
	resp := <-result
	require.Equal(t, Allow, resp.Behavior)

	// The timer must not escalate an already-resolved request.
	time.Sleep(80 * time.Millisecond)
	require.Empty(t, m.QueuedRequests())
	pending, err := store.ListPending()
	require.NoError(t, err)
	require.Empty(t, pending)
}
