package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wardenhq/warden/tooling"
)

type Tool = tooling.Tool
type JSONSchema = tooling.JSONSchema
type ToolResult = tooling.ToolResult

type tool struct {
	name     string
	desc     string
	params   JSONSchema
	mutating bool
	runFn    func(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

func (t tool) Name() string           { return t.name }
func (t tool) Description() string    { return t.desc }
func (t tool) Parameters() JSONSchema { return t.params }
func (t tool) Mutating() bool         { return t.mutating }
func (t tool) Run(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	if t.runFn == nil {
		panic(fmt.Sprintf("tool %q missing run function", t.name))
	}
	return t.runFn(ctx, args)
}

// DefaultRegistry registers the built-in workspace tools.
func DefaultRegistry(workspace string) *tooling.Registry {
	r := tooling.NewRegistry()
	r.Register(ReadFileTool())
	r.Register(WriteFileTool())
	r.Register(ExecTool(workspace))
	return r
}
