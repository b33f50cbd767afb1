package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeTemp(t, "cfg.yaml", `
addr: ":9090"
models_dir: /tmp/models
model_name: guardian-3b-q4
model_url: https://models.example.org/guardian-3b-q4.gguf
model_expected_bytes: 150000000
backend: script
emergency_keywords: ["flood", "avalanche"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.ModelName != "guardian-3b-q4" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.ModelExpectedBytes != 150000000 {
		t.Fatalf("expected bytes=%d", cfg.ModelExpectedBytes)
	}
	if len(cfg.EmergencyKeywords) != 2 || cfg.EmergencyKeywords[0] != "flood" {
		t.Fatalf("keywords=%v", cfg.EmergencyKeywords)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeTemp(t, "cfg.json", `{"addr":":8081","backend":"llama","threads":4}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.Backend != "llama" || cfg.Threads != 4 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeTemp(t, "cfg.toml", "addr = \":8082\"\ngen_timeout_seconds = 20\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8082" || cfg.GenTimeoutSecs != 20 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeTemp(t, "cfg.ini", "addr=:1\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
