package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/approval"
	"github.com/wardenhq/warden/model"
)

var pathArgKeys = map[string]bool{
	"path":        true,
	"file":        true,
	"file_path":   true,
	"target":      true,
	"dest":        true,
	"destination": true,
	"working_dir": true,
}

var commandArgKeys = map[string]bool{
	"command": true,
	"cmd":     true,
	"script":  true,
}

// checkPermission gates one mutating tool call. Protected-path and
// dangerous-command enforcement applies in every permission mode; the
// approval workflow is skipped only in bypass mode.
func (l *Loop) checkPermission(ctx context.Context, session model.Session, call model.ToolCall) (bool, json.RawMessage, string, error) {
	if err := l.guardCheck(call); err != nil {
		return false, nil, err.Error(), nil
	}
	if session.PermissionMode == model.PermissionBypass {
		return true, nil, "", nil
	}

	req := approval.Request{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		ToolName:    call.Name,
		ToolInput:   call.Arguments,
		Description: call.Name + " " + compactArgs(call.Arguments),
		CreatedAt:   time.Now().UTC(),
		Timeout:     l.approvals.DefaultTimeout(session.Source),
		Source:      session.Source,
	}
	ch, err := l.approvals.CreateRequest(req, "")
	if err != nil {
		return false, nil, "", err
	}
	select {
	case resp := <-ch:
		if resp.Behavior == approval.Allow {
			return true, resp.UpdatedInput, "", nil
		}
		return false, nil, resp.Message, nil
	case <-ctx.Done():
		return false, nil, "", ctx.Err()
	}
}

func (l *Loop) guardCheck(call model.ToolCall) error {
	var args map[string]any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil
	}
	for key, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case commandArgKeys[key]:
			if err := l.guard.CheckCommand(s); err != nil {
				return err
			}
		case pathArgKeys[key]:
			if err := l.guard.CheckPath(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func compactArgs(raw json.RawMessage) string {
	const limit = 120
	s := string(raw)
	if len(s) > limit {
		s = s[:limit-3] + "..."
	}
	return s
}
