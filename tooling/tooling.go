package tooling

import (
	"context"
	"encoding/json"
)

// Tool is one named capability the model may invoke. The execution loop
// depends only on this contract, never on concrete tool implementations.
type Tool interface {
	Name() string
	Description() string
	Parameters() JSONSchema
	Run(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

type JSONSchema struct {
	Type       string                `json:"type"`
	Properties map[string]JSONSchema `json:"properties,omitempty"`
	Required   []string              `json:"required,omitempty"`
	Items      *JSONSchema           `json:"items,omitempty"`
	Enum       []string              `json:"enum,omitempty"`
	Desc       string                `json:"description,omitempty"`
}

type ToolResult struct {
	Content string
	IsError bool
}

type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Mutating reports whether a tool changes workspace or external state
// and therefore must pass the permission gate before running. Tools
// implementing it override the default (everything mutates).
type Mutating interface {
	Mutating() bool
}

func IsMutating(t Tool) bool {
	if m, ok := t.(Mutating); ok {
		return m.Mutating()
	}
	return true
}

func ToProviderDefs(tools []Tool) []ToolDef {
	defs := make([]ToolDef, 0, len(tools))
	for _, t := range tools {
		parameters, err := json.Marshal(t.Parameters())
		if err != nil {
			panic(err)
		}
		defs = append(defs, ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  parameters,
		})
	}

	return defs
}
