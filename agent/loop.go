package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/approval"
	"github.com/wardenhq/warden/bus"
	"github.com/wardenhq/warden/guard"
	"github.com/wardenhq/warden/model"
	"github.com/wardenhq/warden/provider"
	"github.com/wardenhq/warden/tooling"
)

const (
	defaultMaxIterations = 25
	defaultMaxHistory    = 200
	repeatBreakLimit     = 2
	toolOutputLimit      = 30000
	truncationMarker     = "\n...[output truncated]...\n"
)

type Config struct {
	MaxIterations int
	MaxHistory    int
	SystemPrompt  string
}

// Loop drives each session's multi-turn, multi-tool-call conversation.
// Sessions run as independent goroutines; the per-model inference slot
// is the only shared resource between them.
type Loop struct {
	bus       *bus.EventBus
	approvals *approval.Manager
	registry  *tooling.Registry
	provider  provider.LLMProvider
	guard     *guard.Guard
	cfg       Config

	mu      sync.Mutex
	runners map[string]*runner
}

type runner struct {
	session model.Session
	queue   *InputQueue
	cancel  context.CancelFunc
	active  bool
	runID   uint64

	history          []model.Message
	toolsUnsupported bool
	costUSD          float64

	extendMu   sync.Mutex
	extend     func(time.Duration)
	lastExtend time.Time
}

// turnState is reset for every user input; the premature-stop and repeat
// guards are scoped to one turn.
type turnState struct {
	iterations int
	nudges     int
	repeats    int
	lastKey    string
	toolUsed   bool
	lastText   string
}

func NewLoop(
	b *bus.EventBus,
	approvals *approval.Manager,
	registry *tooling.Registry,
	prov provider.LLMProvider,
	g *guard.Guard,
	cfg Config,
) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	return &Loop{
		bus:       b,
		approvals: approvals,
		registry:  registry,
		provider:  prov,
		guard:     g,
		cfg:       cfg,
		runners:   map[string]*runner{},
	}
}

func (l *Loop) Enqueue(session model.Session, input Input) {
	l.mu.Lock()
	r, ok := l.runners[session.ID]
	if !ok {
		r = &runner{session: session, queue: &InputQueue{}}
		l.runners[session.ID] = r
	}
	r.queue.Push(input)
	if r.active {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.active = true
	r.runID++
	runID := r.runID
	l.mu.Unlock()
	go l.processQueue(ctx, r, runID)
}

// Cancel stops a session: cancels its in-flight model and tool work,
// denies its pending approvals, and drops its history.
func (l *Loop) Cancel(sessionID string) {
	l.mu.Lock()
	r, ok := l.runners[sessionID]
	var cancel context.CancelFunc
	if ok {
		cancel = r.cancel
		r.cancel = nil
		r.active = false
		delete(l.runners, sessionID)
	}
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.approvals.CancelSession(sessionID)
}

func (l *Loop) Shutdown() {
	l.mu.Lock()
	ids := make([]string, 0, len(l.runners))
	for id := range l.runners {
		ids = append(ids, id)
	}
	l.mu.Unlock()
	for _, id := range ids {
		l.Cancel(id)
	}
}

func (l *Loop) Active(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.runners[sessionID]
	return ok && r.active
}

// SetTimeoutExtender installs the session owner's inactivity-timeout
// extension callback, invoked by the heartbeat while a turn runs.
func (l *Loop) SetTimeoutExtender(sessionID string, fn func(time.Duration)) {
	l.mu.Lock()
	r, ok := l.runners[sessionID]
	if !ok {
		r = &runner{session: model.Session{ID: sessionID}, queue: &InputQueue{}}
		l.runners[sessionID] = r
	}
	l.mu.Unlock()
	r.extendMu.Lock()
	r.extend = fn
	r.extendMu.Unlock()
}

func (l *Loop) processQueue(ctx context.Context, r *runner, runID uint64) {
	sid := r.session.ID
	defer func() {
		l.mu.Lock()
		if r.runID == runID {
			r.cancel = nil
			r.active = false
		}
		l.mu.Unlock()
	}()
	for {
		if ctx.Err() != nil {
			return
		}
		input, ok := r.queue.Pop()
		if !ok {
			l.bus.Emit(sid, bus.Event{Type: bus.EventSessionExited})
			return
		}
		if err := l.runTurn(ctx, r, input); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.bus.Emit(sid, bus.Event{Type: bus.EventError, Error: err.Error()})
			l.bus.Emit(sid, bus.Event{Type: bus.EventSessionExited, Status: "error"})
			return
		}
	}
}

func (l *Loop) runTurn(ctx context.Context, r *runner, input Input) error {
	sid := r.session.ID
	started := time.Now()
	r.history = append(r.history, userMessage(sid, formatInput(input)))
	r.history = trimHistory(r.history, l.cfg.MaxHistory)
	l.bus.Emit(sid, bus.Event{Type: bus.EventThinking})

	modelID := l.provider.Model().ID
	if sp, ok := l.provider.(provider.SlotProvider); ok {
		onWait := func() {
			l.bus.Emit(sid, bus.Event{Type: bus.EventQueueStatus, Status: "waiting for model " + modelID})
		}
		if err := sp.AcquireSlot(ctx, modelID, onWait); err != nil {
			return err
		}
		defer sp.ReleaseSlot(modelID)
	}
	stopHeartbeat := l.startHeartbeat(ctx, r)
	defer stopHeartbeat()

	turn := &turnState{}
	for turn.iterations < l.cfg.MaxIterations {
		turn.iterations++
		completion, err := l.complete(ctx, r)
		if err != nil {
			return err
		}
		assistant := assistantMessage(sid, completion)
		r.history = append(r.history, assistant)
		l.bus.Emit(sid, bus.Event{Type: bus.EventAssistant, Message: &assistant})
		r.costUSD += completion.Usage.CostUSD(l.provider.Model())
		turn.lastText = completion.Content

		if len(completion.ToolCalls) == 0 {
			if l.maybeNudge(r, turn) {
				continue
			}
			break
		}
		if repeatBroke(turn, completion.ToolCalls) {
			r.history = append(r.history, repeatResults(sid, completion.ToolCalls)...)
			break
		}
		for _, call := range completion.ToolCalls {
			r.history = append(r.history, l.runToolCall(ctx, r, turn, call))
		}
		r.history = trimHistory(r.history, l.cfg.MaxHistory)
	}
	l.bus.Emit(sid, bus.Event{
		Type:       bus.EventResult,
		Text:       turn.lastText,
		Iterations: turn.iterations,
		CostUSD:    r.costUSD,
	})
	l.bus.Emit(sid, bus.Event{
		Type:       bus.EventPerformance,
		Text:       time.Since(started).Round(time.Millisecond).String(),
		Iterations: turn.iterations,
	})
	return nil
}

func (l *Loop) complete(ctx context.Context, r *runner) (*provider.Completion, error) {
	var defs []tooling.ToolDef
	if !r.toolsUnsupported {
		defs = tooling.ToProviderDefs(l.registry.List())
	}
	req := provider.Request{
		SystemPrompt: l.cfg.SystemPrompt,
		Messages:     r.history,
		Tools:        defs,
	}
	c, err := l.provider.Complete(ctx, req)
	if err != nil && len(defs) > 0 && errors.Is(err, provider.ErrToolsUnsupported) {
		r.toolsUnsupported = true
		req.Tools = nil
		c, err = l.provider.Complete(ctx, req)
	}
	return c, err
}

func (l *Loop) runToolCall(ctx context.Context, r *runner, turn *turnState, call model.ToolCall) model.Message {
	sid := r.session.ID
	tool, ok := l.registry.Get(call.Name)
	if !ok {
		l.bus.Emit(sid, bus.Event{Type: bus.EventToolStatus, ToolName: call.Name, Status: "unknown"})
		return toolMessage(sid, call.ID, fmt.Sprintf("tool not found: %s", call.Name), true)
	}
	args := call.Arguments
	if tooling.IsMutating(tool) {
		allowed, updated, reason, err := l.checkPermission(ctx, r.session, call)
		if err != nil {
			return toolMessage(sid, call.ID, err.Error(), true)
		}
		if !allowed {
			l.bus.Emit(sid, bus.Event{Type: bus.EventToolStatus, ToolName: call.Name, Status: "denied"})
			return toolMessage(sid, call.ID, denialText(reason), true)
		}
		if len(updated) > 0 {
			args = updated
		}
	}
	l.bus.Emit(sid, bus.Event{Type: bus.EventToolStatus, ToolName: call.Name, Status: "running"})
	result, err := tool.Run(ctx, args)
	if err != nil {
		l.bus.Emit(sid, bus.Event{Type: bus.EventToolStatus, ToolName: call.Name, Status: "error"})
		return toolMessage(sid, call.ID, err.Error(), true)
	}
	status := "done"
	if result.IsError {
		status = "error"
	} else {
		turn.toolUsed = true
	}
	l.bus.Emit(sid, bus.Event{Type: bus.EventToolStatus, ToolName: call.Name, Status: status})
	return toolMessage(sid, call.ID, truncateMiddle(result.Content, toolOutputLimit), result.IsError)
}

func denialText(reason string) string {
	if reason == "" {
		return "Permission denied"
	}
	return "Permission denied: " + reason
}

// repeatBroke tracks a structural key over every call in the step; a model
// stuck issuing the identical batch forever is cut off after
// repeatBreakLimit consecutive repeats.
func repeatBroke(turn *turnState, calls []model.ToolCall) bool {
	key := repeatKey(calls)
	if key == turn.lastKey {
		turn.repeats++
		return turn.repeats >= repeatBreakLimit
	}
	turn.lastKey = key
	turn.repeats = 0
	return false
}

func repeatKey(calls []model.ToolCall) string {
	parts := make([]byte, 0, 64)
	for _, c := range calls {
		parts = append(parts, c.Name...)
		parts = append(parts, 0)
		parts = append(parts, c.Arguments...)
		parts = append(parts, 0)
	}
	return string(parts)
}

func repeatResults(sessionID string, calls []model.ToolCall) []model.Message {
	out := make([]model.Message, 0, len(calls))
	for _, c := range calls {
		out = append(out, toolMessage(sessionID, c.ID, "identical tool call repeated too many times; stopping", true))
	}
	return out
}

func truncateMiddle(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	keep := (limit - len(truncationMarker)) / 2
	return s[:keep] + truncationMarker + s[len(s)-keep:]
}

// trimHistory bounds memory and token cost on very long sessions. The
// first user message anchors the conversation and is always kept.
func trimHistory(history []model.Message, max int) []model.Message {
	if len(history) <= max {
		return history
	}
	out := make([]model.Message, 0, max)
	out = append(out, history[0])
	out = append(out, history[len(history)-(max-1):]...)
	return out
}

func userMessage(sessionID, content string) model.Message {
	return model.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

func assistantMessage(sessionID string, c *provider.Completion) model.Message {
	return model.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   c.Content,
		ToolCalls: c.ToolCalls,
		CreatedAt: time.Now().UTC(),
	}
}

func toolMessage(sessionID, callID, content string, isError bool) model.Message {
	return model.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Role:       model.RoleTool,
		ToolCallID: callID,
		Content:    content,
		IsError:    isError,
		CreatedAt:  time.Now().UTC(),
	}
}
