package config

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/acpbridge/errors"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in the `backend` key.
const (
	BackendClaudeCode = "claude-code"
	BackendAnthropic  = "anthropic"
	BackendBedrock    = "bedrock"
	BackendOpenAI     = "openai"
	BackendGemini     = "gemini"
	BackendMock       = "mock"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".acpbridge"

type FilesystemAccess struct {
	Hidden []string `yaml:"hidden"`
}

// IsHidden reports whether path matches any hidden glob pattern.
// Invalid patterns are treated as non-matching.
func (f FilesystemAccess) IsHidden(path string) bool {
	for _, pattern := range f.Hidden {
		match, err := doublestar.PathMatch(pattern, path)
		if err == nil && match {
			return true
		}
	}
	return false
}

type ClaudeCode struct {
	Path           string   `yaml:"path"`
	Args           []string `yaml:"args"`
	PermissionMode string   `yaml:"permission_mode"`
}

type Config struct {
	Backend          string           `yaml:"backend"`
	Model            string           `yaml:"model"`
	MaxTokens        int64            `yaml:"max_tokens"`
	SystemPrompt     string           `yaml:"system_prompt"`
	ClaudeCode       ClaudeCode       `yaml:"claude_code"`
	LogDir           string           `yaml:"log_dir"`
	LogLevel         string           `yaml:"log_level"`
	FilesystemAccess FilesystemAccess `yaml:"filesystem_access"`
}

// Default returns the configuration used before any file is merged in.
func Default() *Config {
	return &Config{
		Backend:   BackendClaudeCode,
		MaxTokens: 4096,
		ClaudeCode: ClaudeCode{
			Path: "claude",
		},
		LogDir:   filepath.Join(DirName, "sessions"),
		LogLevel: "info",
		FilesystemAccess: FilesystemAccess{
			Hidden: []string{DirName, DirName + "/**"},
		},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, DirName, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, DirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the fields present in the YAML, so the
	// project file replaces user-level values key by key.
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the backend name.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendClaudeCode, BackendAnthropic, BackendBedrock, BackendOpenAI, BackendGemini, BackendMock:
		return nil
	default:
		return errors.New("unknown backend %q", c.Backend)
	}
}
