package config

// Config is the complete runtime configuration loaded from one JSON file.
type Config struct {
	Provider  ProviderConfig `json:"provider"`
	Approval  ApprovalConfig `json:"approval"`
	Agent     AgentConfig    `json:"agent"`
	Guard     GuardConfig    `json:"guard"`
	Workspace string         `json:"workspace"`
	StatePath string         `json:"state_path"`
}

type ProviderConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	MaxTokens  int    `json:"max_tokens"`
	SingleSlot bool   `json:"single_slot"`
}

type ApprovalConfig struct {
	Mode                  string `json:"mode"`
	InteractiveTimeoutSec int    `json:"interactive_timeout_sec"`
	APITimeoutSec         int    `json:"api_timeout_sec"`
	RelayTimeoutSec       int    `json:"relay_timeout_sec"`
}

type AgentConfig struct {
	MaxIterations int    `json:"max_iterations"`
	MaxHistory    int    `json:"max_history"`
	SystemPrompt  string `json:"system_prompt"`
}

type GuardConfig struct {
	ProtectedPaths []string `json:"protected_paths"`
}
