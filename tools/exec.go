package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	execDefaultTimeout   = 600
	execMaxOutputChars   = 100000
	execOutputTruncated  = "[output truncated]"
	execKillGraceTimeout = 5 * time.Second
)

type execParams struct {
	Command    string
	Timeout    int
	WorkingDir string
}

func ExecTool(workspace string) Tool {
	return tool{
		name:     "exec",
		desc:     "Execute a shell command and return combined stdout/stderr output",
		mutating: true,
		params: JSONSchema{
			Type:     "object",
			Required: []string{"command"},
			Properties: map[string]JSONSchema{
				"command": {
					Type: "string",
					Desc: "Shell command to execute",
				},
				"timeout": {
					Type: "integer",
					Desc: fmt.Sprintf("Execution timeout in seconds (default: %d)", execDefaultTimeout),
				},
				"working_dir": {
					Type: "string",
					Desc: "Directory to execute the command in",
				},
			},
		},
		runFn: func(ctx context.Context, args json.RawMessage) (ToolResult, error) {
			params, err := parseExecParams(args)
			if err != nil {
				return ToolResult{IsError: true, Content: err.Error()}, nil
			}
			if params.WorkingDir == "" {
				params.WorkingDir = workspace
			}
			return runExec(ctx, params), nil
		},
	}
}

func parseExecParams(raw json.RawMessage) (execParams, error) {
	var input struct {
		Command    *string `json:"command"`
		Timeout    *int    `json:"timeout"`
		WorkingDir *string `json:"working_dir"`
	}
	if err := unmarshalObject(raw, &input); err != nil {
		return execParams{}, fmt.Errorf("parse exec parameters: %v", err)
	}
	if input.Command == nil || *input.Command == "" {
		return execParams{}, errors.New("exec parameter command is required")
	}
	timeout := execDefaultTimeout
	if input.Timeout != nil {
		timeout = *input.Timeout
	}
	if timeout <= 0 || timeout > execDefaultTimeout {
		return execParams{}, fmt.Errorf("exec timeout must be between 1 and %d", execDefaultTimeout)
	}
	params := execParams{Command: *input.Command, Timeout: timeout}
	if input.WorkingDir != nil {
		params.WorkingDir = *input.WorkingDir
	}

	return params, nil
}

func runExec(ctx context.Context, params execParams) ToolResult {
	cmd := exec.Command("sh", "-c", params.Command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if params.WorkingDir != "" {
		cmd.Dir = params.WorkingDir
	}

	output := &bytes.Buffer{}
	mu := &sync.Mutex{}
	cmd.Stdout = &lockedWriter{buf: output, mu: mu}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return ToolResult{IsError: true, Content: fmt.Sprintf("failed to start command: %v", err)}
	}

	done := make(chan int, 1)
	go func() {
		_ = cmd.Wait()
		done <- cmd.ProcessState.ExitCode()
	}()

	timer := time.NewTimer(time.Duration(params.Timeout) * time.Second)
	defer timer.Stop()
	var exitCode int
	status := ""
	select {
	case <-ctx.Done():
		exitCode = terminate(cmd, done)
		status = "canceled"
	case <-timer.C:
		exitCode = terminate(cmd, done)
		status = "timeout"
	case exitCode = <-done:
	}

	mu.Lock()
	text := truncateExecOutput(output.String())
	mu.Unlock()
	return formatExecResult(exitCode, status, text)
}

func terminate(cmd *exec.Cmd, done <-chan int) int {
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	grace := time.NewTimer(execKillGraceTimeout)
	defer grace.Stop()

	select {
	case code := <-done:
		return code
	case <-grace.C:
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return <-done
	}
}

type lockedWriter struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func truncateExecOutput(output string) string {
	if len(output) <= execMaxOutputChars {
		return output
	}
	return output[:execMaxOutputChars] + "\n" + execOutputTruncated
}

func formatExecResult(exitCode int, status, output string) ToolResult {
	var parts []string
	if output != "" {
		parts = append(parts, output)
	}
	if status != "" {
		parts = append(parts, fmt.Sprintf("[%s]", status))
	}
	if exitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit code: %d", exitCode))
	}
	content := strings.Join(parts, "\n")
	if content == "" {
		content = "(no output)"
	}
	return ToolResult{Content: content, IsError: exitCode != 0 || status != ""}
}
