// Package app provides application-level configuration and initialization.
package app

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/martymcenroe/unleashed/internal/model"
)

// Config holds the application configuration.
type Config struct {
	// AgentPath is the full path to the agent executable (claude).
	AgentPath string `json:"agent_path"`
	// AgentArgs are extra arguments always passed to the agent.
	AgentArgs []string `json:"agent_args,omitempty"`
	// JudgeModel is the model used for remote safety verdicts.
	JudgeModel string `json:"judge_model"`
	// JudgeKeyEnv names the environment variable holding the judge
	// API key. Keys never live in the config file itself.
	JudgeKeyEnv string `json:"judge_key_env"`
	// JudgeTimeoutSecs bounds a single judge call.
	JudgeTimeoutSecs int `json:"judge_timeout_secs"`
	// GateScope selects which tool categories are evaluated:
	// "bash", "write", or "all".
	GateScope string `json:"gate_scope"`
	// CountdownSecs delays auto-approval so the operator can cancel;
	// zero approves instantly.
	CountdownSecs int `json:"countdown_secs"`
	// ConfirmTimeoutSecs bounds the typed-confirmation wait.
	ConfirmTimeoutSecs int `json:"confirm_timeout_secs"`
	// Transcript enables raw output teeing to a session file.
	Transcript bool `json:"transcript"`
	// AnswerPauses enables auto-answering conversational questions.
	AnswerPauses bool `json:"answer_pauses"`
	// Notifications configures desktop and webhook alerts.
	Notifications model.NotificationConfig `json:"notifications"`
	// Initialized indicates the first-run setup has completed.
	Initialized bool `json:"initialized"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		JudgeModel:         "claude-3-5-haiku-latest",
		JudgeKeyEnv:        "UNLEASHED_SENTINEL_KEY",
		JudgeTimeoutSecs:   3,
		GateScope:          "bash",
		CountdownSecs:      0,
		ConfirmTimeoutSecs: 30,
		Transcript:         true,
		AnswerPauses:       true,
	}
}

// ConfigDir returns the configuration directory, honoring
// XDG_CONFIG_HOME.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "unleashed")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unleashed"
	}
	return filepath.Join(home, ".config", "unleashed")
}

// ConfigPath returns the path to the config file.
func ConfigPath(configDir string) string {
	return filepath.Join(configDir, "config.json")
}

// RulesPath returns the path to the safety rule table.
func RulesPath(configDir string) string {
	return filepath.Join(configDir, "rules.yaml")
}

// LogDir returns the directory for session logs and transcripts.
func LogDir(configDir string) string {
	return filepath.Join(configDir, "logs")
}

// LoadConfig loads the configuration from disk. A missing file yields
// defaults.
func LoadConfig(configDir string) (*Config, error) {
	path := ConfigPath(configDir)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to disk.
func SaveConfig(configDir string, config *Config) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigPath(configDir), data, 0o644)
}

// DetectAgentPath attempts to find the claude executable.
func DetectAgentPath() string {
	if path, err := exec.LookPath("claude"); err == nil {
		return path
	}

	home, _ := os.UserHomeDir()
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/opt/homebrew/bin/claude",
			"/usr/local/bin/claude",
			filepath.Join(home, ".local/bin/claude"),
			filepath.Join(home, ".npm-global/bin/claude"),
		}
		if npmPrefix, err := exec.Command("npm", "config", "get", "prefix").Output(); err == nil {
			candidates = append(candidates,
				filepath.Join(strings.TrimSpace(string(npmPrefix)), "bin", "claude"))
		}
	case "linux":
		candidates = []string{
			"/usr/local/bin/claude",
			"/usr/bin/claude",
			filepath.Join(home, ".local/bin/claude"),
			filepath.Join(home, ".npm-global/bin/claude"),
		}
	case "windows":
		candidates = []string{
			filepath.Join(home, "AppData", "Roaming", "npm", "claude.cmd"),
			filepath.Join(home, "AppData", "Local", "Programs", "claude", "claude.exe"),
		}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// ValidateAgentPath checks if the given path is an executable file.
func ValidateAgentPath(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	if runtime.GOOS != "windows" {
		return info.Mode()&0o111 != 0
	}

	return true
}
