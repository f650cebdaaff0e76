package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runTool(t *testing.T, tool Tool, args string) ToolResult {
	t.Helper()
	result, err := tool.Run(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s run: %v", tool.Name(), err)
	}
	return result
}

func TestReadFileNumbersLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.txt")
	if err := os.WriteFile(path, []byte("alpha\nbeta\ngamma\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	result := runTool(t, ReadFileTool(), `{"path":`+jsonString(path)+`}`)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "1\talpha") || !strings.Contains(result.Content, "3\tgamma") {
		t.Fatalf("unexpected content:\n%s", result.Content)
	}
}

func TestReadFileOffsetLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.txt")
	if err := os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	result := runTool(t, ReadFileTool(), `{"path":`+jsonString(path)+`,"offset":1,"limit":2}`)
	if strings.Contains(result.Content, "1\ta") || !strings.Contains(result.Content, "2\tb") {
		t.Fatalf("offset not honored:\n%s", result.Content)
	}
	if strings.Contains(result.Content, "4\td") {
		t.Fatalf("limit not honored:\n%s", result.Content)
	}
}

func TestReadFileMissingPath(t *testing.T) {
	result := runTool(t, ReadFileTool(), `{}`)
	if !result.IsError {
		t.Fatal("expected error for missing path")
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "out.txt")

	result := runTool(t, WriteFileTool(), `{"path":`+jsonString(path)+`,"content":"hello"}`)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q, want hello", data)
	}
}

func TestExecCapturesOutputAndExitCode(t *testing.T) {
	result := runTool(t, ExecTool(t.TempDir()), `{"command":"echo out; echo err 1>&2"}`)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "out") || !strings.Contains(result.Content, "err") {
		t.Fatalf("combined output missing streams:\n%s", result.Content)
	}

	result = runTool(t, ExecTool(t.TempDir()), `{"command":"exit 3"}`)
	if !result.IsError || !strings.Contains(result.Content, "exit code: 3") {
		t.Fatalf("expected exit code 3 error, got: %s", result.Content)
	}
}

func TestExecTimeout(t *testing.T) {
	result := runTool(t, ExecTool(t.TempDir()), `{"command":"sleep 30","timeout":1}`)
	if !result.IsError || !strings.Contains(result.Content, "[timeout]") {
		t.Fatalf("expected timeout result, got: %s", result.Content)
	}
}

func TestExecWorkingDir(t *testing.T) {
	dir := t.TempDir()
	result := runTool(t, ExecTool(dir), `{"command":"pwd"}`)
	if !strings.Contains(result.Content, filepath.Base(dir)) {
		t.Fatalf("expected workspace dir in output, got: %s", result.Content)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(t.TempDir())
	for _, name := range []string{"read_file", "write_file", "exec"} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("missing tool %q", name)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("registry has %d tools, want 3", r.Len())
	}
}

func jsonString(path string) string {
	b, _ := json.Marshal(path)
	return string(b)
}
