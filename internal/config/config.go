package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Detector DetectorConfig `yaml:"detector"`
	Crop     CropConfig     `yaml:"crop"`
	Output   OutputConfig   `yaml:"output"`
	Debug    DebugConfig    `yaml:"debug"`
}

// DetectorConfig selects the landmark backend
type DetectorConfig struct {
	Backend       string    `yaml:"backend"`
	Python        string    `yaml:"python"`
	Script        string    `yaml:"script"`
	Engines       int       `yaml:"engines"`
	MinConfidence float64   `yaml:"min_confidence"`
	Select        string    `yaml:"select"`
	SidecarLayout string    `yaml:"sidecar_layout"`
	Ollama        LLMConfig `yaml:"ollama"`
	LlamaCpp      LLMConfig `yaml:"llamacpp"`
}

// LLMConfig points at a vision model server
type LLMConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// CropConfig holds the crop geometry
type CropConfig struct {
	Margin       int  `yaml:"margin"`
	SafetyOffset int  `yaml:"safety_offset"`
	AutoOrient   bool `yaml:"auto_orient"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Quality  int  `yaml:"quality"`
	Workers  int  `yaml:"workers"`
	Progress bool `yaml:"progress"`
}

// DebugConfig controls the overlay images
type DebugConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Extension string `yaml:"extension"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Detector: DetectorConfig{
			Backend:       "facemesh",
			Python:        "python3",
			Script:        "python/facemesh_engine.py",
			Engines:       1,
			MinConfidence: 0.5,
			Select:        "first",
			SidecarLayout: "mediapipe-facemesh/v1",
			Ollama: LLMConfig{
				URL:   "http://localhost:11434",
				Model: "llama3.2-vision:11b",
			},
			LlamaCpp: LLMConfig{
				URL:   "http://localhost:8080",
				Model: "llava",
			},
		},
		Crop: CropConfig{
			Margin:       0,
			SafetyOffset: 5,
			AutoOrient:   true,
		},
		Output: OutputConfig{
			Quality: 95,
			Workers: 1,
		},
		Debug: DebugConfig{
			Extension: "png",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads the file at path, or the default path if it exists, then
// applies environment overrides
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		if p := GetConfigPath(); fileExists(p) {
			path = p
		}
	}
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	config.ApplyEnv()
	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides values from BROWCROP_*, OLLAMA_* and LLAMACPP_* variables
func (c *Config) ApplyEnv() {
	envString("BROWCROP_DETECTOR", &c.Detector.Backend)
	envString("BROWCROP_PYTHON", &c.Detector.Python)
	envString("BROWCROP_FACEMESH_SCRIPT", &c.Detector.Script)
	envString("OLLAMA_URL", &c.Detector.Ollama.URL)
	envString("OLLAMA_MODEL", &c.Detector.Ollama.Model)
	envString("LLAMACPP_URL", &c.Detector.LlamaCpp.URL)
	envString("LLAMACPP_MODEL", &c.Detector.LlamaCpp.Model)
	c.Detector.Engines = envInt("BROWCROP_ENGINES", c.Detector.Engines)
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Detector.Backend {
	case "facemesh", "ollama", "llamacpp", "sidecar":
	default:
		return fmt.Errorf("detector.backend must be one of facemesh, ollama, llamacpp, sidecar")
	}

	if c.Detector.Engines < 1 {
		return fmt.Errorf("detector.engines must be positive")
	}

	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("detector.min_confidence must be between 0 and 1")
	}

	switch c.Detector.Select {
	case "", "first", "confident", "largest":
	default:
		return fmt.Errorf("detector.select must be one of first, confident, largest")
	}

	if c.Crop.SafetyOffset < 0 {
		return fmt.Errorf("crop.safety_offset must not be negative")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Output.Workers < 1 {
		return fmt.Errorf("output.workers must be positive")
	}

	switch strings.ToLower(c.Debug.Extension) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("debug.extension must be png, jpg or webp")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "browcrop", "config.yaml")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
