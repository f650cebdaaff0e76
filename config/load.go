package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultWorkspace     = "~/.warden/workspace"
	defaultStatePath     = "~/.warden/state"
	defaultBaseURL       = "http://127.0.0.1:1234/v1"
	defaultMaxTokens     = 8192
	defaultMode          = "normal"
	defaultMaxIterations = 25
	defaultMaxHistory    = 200
)

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %v", path, err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %q: %v", path, err)
	}

	applyDefaults(&c)
	if err := expandPaths(&c); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Workspace == "" {
		c.Workspace = defaultWorkspace
	}
	if c.StatePath == "" {
		c.StatePath = defaultStatePath
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultBaseURL
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = defaultMaxTokens
	}
	if c.Approval.Mode == "" {
		c.Approval.Mode = defaultMode
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = defaultMaxIterations
	}
	if c.Agent.MaxHistory == 0 {
		c.Agent.MaxHistory = defaultMaxHistory
	}
}

func expandPaths(c *Config) error {
	w, err := expandHome(c.Workspace)
	if err != nil {
		return fmt.Errorf("workspace: %v", err)
	}
	s, err := expandHome(c.StatePath)
	if err != nil {
		return fmt.Errorf("state_path: %v", err)
	}
	c.Workspace = w
	c.StatePath = s
	return nil
}

func expandHome(p string) (string, error) {
	if p == "" || p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %v", err)
	}
	if p == "~" {
		return h, nil
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(h, p[2:]), nil
	}
	return "", fmt.Errorf("unsupported home path %q", p)
}

func validate(c Config) error {
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Provider.MaxTokens <= 0 {
		return fmt.Errorf("provider.max_tokens must be greater than zero")
	}
	modes := map[string]bool{"normal": true, "queued": true, "paused": true}
	if !modes[c.Approval.Mode] {
		return fmt.Errorf("approval.mode must be one of normal, queued, paused")
	}
	if c.Approval.InteractiveTimeoutSec < 0 || c.Approval.APITimeoutSec < 0 || c.Approval.RelayTimeoutSec < 0 {
		return fmt.Errorf("approval timeouts must not be negative")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be greater than zero")
	}
	if c.Agent.MaxHistory <= 2 {
		return fmt.Errorf("agent.max_history must be greater than two")
	}
	return nil
}
