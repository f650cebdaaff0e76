package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	readDefaultLimit   = 1000
	readMaxOutputBytes = 256 * 1024
)

type readParams struct {
	Path   string
	Offset int
	Limit  int
}

func ReadFileTool() Tool {
	return tool{
		name:     "read_file",
		desc:     "Read file contents with line numbers",
		mutating: false,
		params: JSONSchema{
			Type:     "object",
			Required: []string{"path"},
			Properties: map[string]JSONSchema{
				"path": {
					Type: "string",
					Desc: "Path to the file to read",
				},
				"offset": {
					Type: "integer",
					Desc: "Line number to start reading from",
				},
				"limit": {
					Type: "integer",
					Desc: "Maximum number of lines to return",
				},
			},
		},
		runFn: func(ctx context.Context, args json.RawMessage) (ToolResult, error) {
			params, err := parseReadParams(args)
			if err != nil {
				return ToolResult{IsError: true, Content: err.Error()}, nil
			}
			content, err := readFileContent(params.Path, params.Offset, params.Limit)
			if err != nil {
				return ToolResult{IsError: true, Content: err.Error()}, nil
			}
			return ToolResult{Content: content}, nil
		},
	}
}

func parseReadParams(raw json.RawMessage) (readParams, error) {
	var input struct {
		Path   *string `json:"path"`
		Offset *int    `json:"offset"`
		Limit  *int    `json:"limit"`
	}
	if err := unmarshalObject(raw, &input); err != nil {
		return readParams{}, fmt.Errorf("invalid read_file parameters: %w", err)
	}
	if input.Path == nil || *input.Path == "" {
		return readParams{}, errors.New("read_file parameter path is required")
	}
	params := readParams{Path: *input.Path, Limit: readDefaultLimit}
	if input.Offset != nil && *input.Offset > 0 {
		params.Offset = *input.Offset
	}
	if input.Limit != nil && *input.Limit > 0 {
		params.Limit = *input.Limit
	}
	return params, nil
}

func readFileContent(path string, offset, limit int) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	output := &bytes.Buffer{}
	written := 0
	for lineNo := 0; ; lineNo++ {
		line, readErr := reader.ReadString('\n')
		if len(line) == 0 && errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return "", readErr
		}
		if strings.IndexByte(line, 0) >= 0 {
			return "", fmt.Errorf("binary file")
		}
		if lineNo >= offset && written < limit {
			fmt.Fprintf(output, "%6d\t%s\n", lineNo+1, strings.TrimSuffix(line, "\n"))
			written++
		}
		if output.Len() >= readMaxOutputBytes || written >= limit {
			break
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
	}
	return output.String(), nil
}
