package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

func WriteFileTool() Tool {
	return tool{
		name:     "write_file",
		desc:     "Write content to a file, creating parent directories as needed",
		mutating: true,
		params: JSONSchema{
			Type:     "object",
			Required: []string{"path", "content"},
			Properties: map[string]JSONSchema{
				"path": {
					Type: "string",
					Desc: "Path to the file to write",
				},
				"content": {
					Type: "string",
					Desc: "Full content to write",
				},
			},
		},
		runFn: func(ctx context.Context, args json.RawMessage) (ToolResult, error) {
			var input struct {
				Path    *string `json:"path"`
				Content *string `json:"content"`
			}
			if err := unmarshalObject(args, &input); err != nil {
				return ToolResult{IsError: true, Content: fmt.Sprintf("invalid write_file parameters: %v", err)}, nil
			}
			if input.Path == nil || *input.Path == "" {
				return ToolResult{IsError: true, Content: errors.New("write_file parameter path is required").Error()}, nil
			}
			if input.Content == nil {
				return ToolResult{IsError: true, Content: "write_file parameter content is required"}, nil
			}
			if err := os.MkdirAll(filepath.Dir(*input.Path), 0o755); err != nil {
				return ToolResult{IsError: true, Content: err.Error()}, nil
			}
			if err := os.WriteFile(*input.Path, []byte(*input.Content), 0o644); err != nil {
				return ToolResult{IsError: true, Content: err.Error()}, nil
			}
			return ToolResult{Content: fmt.Sprintf("wrote %d bytes to %s", len(*input.Content), *input.Path)}, nil
		},
	}
}
