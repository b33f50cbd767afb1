package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Model artifact acquisition.
	ModelsDir          string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ModelName          string `json:"model_name" yaml:"model_name" toml:"model_name"`
	ModelURL           string `json:"model_url" yaml:"model_url" toml:"model_url"`
	ModelExpectedBytes int64  `json:"model_expected_bytes" yaml:"model_expected_bytes" toml:"model_expected_bytes"`

	// Inference.
	Backend          string `json:"backend" yaml:"backend" toml:"backend"` // llama | script
	Threads          int    `json:"threads" yaml:"threads" toml:"threads"`
	GenTimeoutSecs   int    `json:"gen_timeout_seconds" yaml:"gen_timeout_seconds" toml:"gen_timeout_seconds"`
	MaxTokens        int    `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature      float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	CtxSize          int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`

	// Safety compliance.
	EmergencyKeywords []string `json:"emergency_keywords" yaml:"emergency_keywords" toml:"emergency_keywords"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
