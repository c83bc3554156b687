package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// ALEXANDRIA_CAPTURE_INTERVAL_MINUTES=5.
const EnvPrefix = "ALEXANDRIA"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file (if present), applies environment overrides,
// fills in directory defaults and validates the result.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Seed every known key so env overrides work without a file.
	defaults, err := toMap(DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return nil, fmt.Errorf("failed to seed defaults: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateSchema(raw, configType(configPath)); err != nil {
			return nil, err
		}

		v.SetConfigFile(configPath)
		v.SetConfigType(configType(configPath))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyPathDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if configType(configPath) == "yaml" {
		data, err = cfg.ToYAML()
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return filepath.Join(ConfigDir(), "config.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}
	return out, nil
}

func validateSchema(raw []byte, kind string) error {
	var doc gojsonschema.JSONLoader
	if kind == "yaml" {
		var parsed map[string]any
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		if parsed == nil {
			parsed = map[string]any{}
		}
		doc = gojsonschema.NewGoLoader(parsed)
	} else {
		doc = gojsonschema.NewBytesLoader(raw)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(configSchema), doc)
	if err != nil {
		return fmt.Errorf("failed to validate config file: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("config file does not match schema: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyPathDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DataDir()
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.DataDir, "memories.db")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(CacheDir(), "logs", "alexandria.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(CacheDir(), "logs", "audit.log")
	}
}
