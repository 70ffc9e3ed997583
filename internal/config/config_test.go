package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Crop.SafetyOffset != 5 {
		t.Errorf("expected safety offset 5, got %d", cfg.Crop.SafetyOffset)
	}
	if cfg.Detector.MinConfidence != 0.5 {
		t.Errorf("expected min confidence 0.5, got %f", cfg.Detector.MinConfidence)
	}
	if !cfg.Crop.AutoOrient {
		t.Error("expected auto orientation on by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Detector.Backend = "dlib" }},
		{"zero engines", func(c *Config) { c.Detector.Engines = 0 }},
		{"confidence above one", func(c *Config) { c.Detector.MinConfidence = 1.5 }},
		{"unknown selection", func(c *Config) { c.Detector.Select = "random" }},
		{"negative offset", func(c *Config) { c.Crop.SafetyOffset = -1 }},
		{"quality zero", func(c *Config) { c.Output.Quality = 0 }},
		{"quality too high", func(c *Config) { c.Output.Quality = 101 }},
		{"zero workers", func(c *Config) { c.Output.Workers = 0 }},
		{"debug gif", func(c *Config) { c.Debug.Extension = "gif" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNegativeMarginIsAccepted(t *testing.T) {
	cfg := Default()
	cfg.Crop.Margin = -40
	if err := cfg.Validate(); err != nil {
		t.Errorf("margin is not validated, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Detector.Backend = "ollama"
	cfg.Detector.Ollama.Model = "llava:13b"
	cfg.Crop.Margin = 20
	cfg.Debug.Enabled = true

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Detector.Backend != "ollama" || loaded.Detector.Ollama.Model != "llava:13b" {
		t.Errorf("detector section not restored: %+v", loaded.Detector)
	}
	if loaded.Crop.Margin != 20 || !loaded.Debug.Enabled {
		t.Errorf("crop/debug sections not restored: %+v %+v", loaded.Crop, loaded.Debug)
	}
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("crop:\n  margin: 12\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Crop.Margin != 12 {
		t.Errorf("expected margin 12, got %d", cfg.Crop.Margin)
	}
	if cfg.Detector.Backend != "facemesh" || cfg.Output.Quality != 95 {
		t.Error("expected unspecified keys to keep defaults")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("crop: [unterminated"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BROWCROP_DETECTOR", "llamacpp")
	t.Setenv("LLAMACPP_URL", "http://gpu:8080")
	t.Setenv("OLLAMA_MODEL", "minicpm-v")
	t.Setenv("BROWCROP_ENGINES", "4")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Detector.Backend != "llamacpp" {
		t.Errorf("expected backend from env, got %s", cfg.Detector.Backend)
	}
	if cfg.Detector.LlamaCpp.URL != "http://gpu:8080" || cfg.Detector.Ollama.Model != "minicpm-v" {
		t.Error("expected LLM settings from env")
	}
	if cfg.Detector.Engines != 4 {
		t.Errorf("expected 4 engines, got %d", cfg.Detector.Engines)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("BROWCROP_ENGINES", "-2")
	if got := envInt("BROWCROP_ENGINES", 3); got != 3 {
		t.Errorf("expected fallback 3, got %d", got)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	t.Setenv("BROWCROP_DETECTOR", "sidecar")
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("detector:\n  backend: ollama\n"), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Detector.Backend != "sidecar" {
		t.Errorf("expected env to override file, got %s", cfg.Detector.Backend)
	}
}
