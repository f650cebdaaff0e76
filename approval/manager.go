package approval

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/model"
)

const (
	timeoutInteractive = 2 * time.Minute
	timeoutRelay       = time.Hour
	timeoutAPI         = 5 * time.Minute

	msgTimedOut     = "Approval timed out"
	msgSessionStop  = "Session stopped"
	msgShuttingDown = "Server shutting down"
)

type pendingRequest struct {
	req    Request
	sender string
	timer  *time.Timer
	result chan Response
	// escalated entries are keyed by their persisted queue id and have
	// no timer; they wait for an operator or shutdown.
	escalated bool
}

// Manager turns every tool-invocation attempt into a gated, resolvable
// request. Each request id has at most one live pending entry and is
// resolved at most once; a second resolution reports failure with no
// state change.
type Manager struct {
	mu      sync.Mutex
	mode    Mode
	store   EscalationStore
	pending map[string]*pendingRequest
	parked  map[string]*pendingRequest
	down    bool

	interactiveTimeout time.Duration
	apiTimeout         time.Duration
	relayTimeout       time.Duration
}

// NewManager creates a Manager in normal mode. store may be nil; without
// it, timed-out requests deny instead of escalating.
func NewManager(store EscalationStore) *Manager {
	return &Manager{
		mode:               ModeNormal,
		store:              store,
		pending:            map[string]*pendingRequest{},
		parked:             map[string]*pendingRequest{},
		interactiveTimeout: timeoutInteractive,
		apiTimeout:         timeoutAPI,
		relayTimeout:       timeoutRelay,
	}
}

// SetDefaultTimeouts overrides the per-source approval windows. Zero
// values keep the current setting.
func (m *Manager) SetDefaultTimeouts(interactive, api, relay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interactive > 0 {
		m.interactiveTimeout = interactive
	}
	if api > 0 {
		m.apiTimeout = api
	}
	if relay > 0 {
		m.relayTimeout = relay
	}
}

func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Manager) SetMode(mode Mode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
}

// CreateRequest registers the request and returns a channel that yields
// exactly one Response when the request is resolved. senderAddress, if
// non-empty, binds the identity authorized to answer via short id.
func (m *Manager) CreateRequest(req Request, senderAddress string) (<-chan Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Timeout <= 0 {
		req.Timeout = m.DefaultTimeout(req.Source)
	}
	result := make(chan Response, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down || m.mode == ModePaused {
		msg := "Approvals are paused"
		if m.down {
			msg = msgShuttingDown
		}
		result <- Response{RequestID: req.ID, Behavior: Deny, Message: msg}
		return result, nil
	}

	entry := &pendingRequest{req: req, sender: senderAddress, result: result}

	if m.mode == ModeQueued && m.store != nil {
		record, err := m.store.Enqueue(req.SessionID, req.ToolName, req.ToolInput)
		if err != nil {
			return nil, err
		}
		entry.escalated = true
		entry.req.ID = record.QueueID
		m.parked[record.QueueID] = entry
		return result, nil
	}

	id := req.ID
	entry.timer = time.AfterFunc(req.Timeout, func() { m.expire(id) })
	m.pending[id] = entry
	return result, nil
}

// expire converts a still-pending request into an escalation, or denies
// it when no store is configured. Racing with an explicit resolve is
// expected; the map lookup decides the winner.
func (m *Manager) expire(id string) {
	m.mu.Lock()
	entry, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pending, id)
	if m.store == nil {
		m.mu.Unlock()
		entry.result <- Response{RequestID: id, Behavior: Deny, Message: msgTimedOut}
		return
	}
	record, err := m.store.Enqueue(entry.req.SessionID, entry.req.ToolName, entry.req.ToolInput)
	if err != nil {
		m.mu.Unlock()
		entry.result <- Response{RequestID: id, Behavior: Deny, Message: msgTimedOut}
		return
	}
	entry.escalated = true
	entry.req.ID = record.QueueID
	m.parked[record.QueueID] = entry
	m.mu.Unlock()
}

// Resolve fulfills a pending or escalated request. It returns false with
// no side effects when id is unknown; callers must treat that as an
// expected race (already resolved or timed out), not an error.
func (m *Manager) Resolve(id string, resp Response) bool {
	m.mu.Lock()
	entry := m.remove(id)
	m.mu.Unlock()
	if entry == nil {
		return false
	}
	m.fulfill(entry, resp)
	return true
}

// ResolveByShortID resolves the unique live pending request whose id
// matches the given prefix, case-insensitively. When the request has a
// bound sender address and the caller's differs, it fails closed.
func (m *Manager) ResolveByShortID(prefix string, resp Response, senderAddress string) bool {
	if prefix == "" {
		return false
	}
	lower := strings.ToLower(prefix)

	m.mu.Lock()
	var match *pendingRequest
	for id, entry := range m.pending {
		if !strings.HasPrefix(strings.ToLower(id), lower) {
			continue
		}
		if match != nil {
			m.mu.Unlock()
			return false
		}
		match = entry
	}
	if match == nil || (match.sender != "" && match.sender != senderAddress) {
		m.mu.Unlock()
		return false
	}
	entry := m.remove(match.req.ID)
	m.mu.Unlock()
	if entry == nil {
		return false
	}
	m.fulfill(entry, resp)
	return true
}

// SetSenderAddress binds the authorized responder identity after request
// creation, for channels that resolve identity asynchronously.
func (m *Manager) SetSenderAddress(id, address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.pending[id]; ok {
		entry.sender = address
		return true
	}
	if entry, ok := m.parked[id]; ok {
		entry.sender = address
		return true
	}
	return false
}

// CancelSession denies every pending and escalated request belonging to
// the session. Requests for other sessions are untouched.
func (m *Manager) CancelSession(sessionID string) {
	m.denyWhere(func(entry *pendingRequest) bool {
		return entry.req.SessionID == sessionID
	}, msgSessionStop)
}

// Shutdown denies all pending and escalated requests and clears all
// state. Calling it twice is a safe no-op.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.down {
		m.mu.Unlock()
		return
	}
	m.down = true
	m.mu.Unlock()
	m.denyWhere(func(*pendingRequest) bool { return true }, msgShuttingDown)
}

func (m *Manager) denyWhere(match func(*pendingRequest) bool, msg string) {
	m.mu.Lock()
	var victims []*pendingRequest
	for id, entry := range m.pending {
		if match(entry) {
			victims = append(victims, entry)
			entry.stopTimer()
			delete(m.pending, id)
		}
	}
	for id, entry := range m.parked {
		if match(entry) {
			victims = append(victims, entry)
			delete(m.parked, id)
		}
	}
	m.mu.Unlock()
	for _, entry := range victims {
		m.fulfill(entry, Response{RequestID: entry.req.ID, Behavior: Deny, Message: msg})
	}
}

// PendingForSession lists live pending requests for one session.
func (m *Manager) PendingForSession(sessionID string) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, entry := range m.pending {
		if entry.req.SessionID == sessionID {
			out = append(out, entry.req)
		}
	}
	return out
}

func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) > 0
}

// QueuedRequests lists requests parked on the escalation queue, both
// queued-mode creations and timeout conversions.
func (m *Manager) QueuedRequests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, 0, len(m.parked))
	for _, entry := range m.parked {
		out = append(out, entry.req)
	}
	return out
}

// DefaultTimeout returns the approval window for a source. Latency-
// tolerant channels get a longer window so a slow human reply does not
// spuriously escalate.
func (m *Manager) DefaultTimeout(source model.Source) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch source {
	case model.SourceRelay:
		return m.relayTimeout
	case model.SourceAPI:
		return m.apiTimeout
	default:
		return m.interactiveTimeout
	}
}

// remove detaches an entry from whichever table holds it and stops its
// timer. Caller holds m.mu.
func (m *Manager) remove(id string) *pendingRequest {
	if entry, ok := m.pending[id]; ok {
		entry.stopTimer()
		delete(m.pending, id)
		return entry
	}
	if entry, ok := m.parked[id]; ok {
		delete(m.parked, id)
		return entry
	}
	return nil
}

// fulfill delivers the response and records the terminal resolution for
// escalated requests.
func (m *Manager) fulfill(entry *pendingRequest, resp Response) {
	if entry.escalated && m.store != nil {
		resolution := model.EscalationDenied
		if resp.Behavior == Allow {
			resolution = model.EscalationApproved
		}
		_, _ = m.store.Resolve(entry.req.ID, resolution)
	}
	resp.RequestID = entry.req.ID
	entry.result <- resp
}

func (p *pendingRequest) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}
