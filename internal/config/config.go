package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the main Alexandria configuration
type Config struct {
	// Capture cadence and target
	Capture CaptureConfig `json:"capture" mapstructure:"capture" yaml:"capture"`

	// Active window resolution
	Compositor CompositorConfig `json:"compositor" mapstructure:"compositor" yaml:"compositor"`

	// Text recognition and tagging
	OCR OCRConfig `json:"ocr" mapstructure:"ocr" yaml:"ocr"`

	// Privacy rules
	Privacy PrivacyConfig `json:"privacy" mapstructure:"privacy" yaml:"privacy"`

	// Storage and retention
	Storage StorageConfig `json:"storage" mapstructure:"storage" yaml:"storage"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging" yaml:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir" yaml:"data_dir"`
}

// CaptureConfig controls when and what the scheduler captures.
type CaptureConfig struct {
	IntervalMinutes  float64  `json:"interval_minutes" mapstructure:"interval_minutes" yaml:"interval_minutes"`
	JitterSeconds    int      `json:"jitter_seconds" mapstructure:"jitter_seconds" yaml:"jitter_seconds"`
	ExcludeWindows   []string `json:"exclude_windows" mapstructure:"exclude_windows" yaml:"exclude_windows"`
	Binary           string   `json:"binary" mapstructure:"binary" yaml:"binary"`
	TimeoutSeconds   int      `json:"timeout_seconds" mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	OutputSelection  string   `json:"output_selection" mapstructure:"output_selection" yaml:"output_selection"` // all, primary, specific
	SpecificOutput   string   `json:"specific_output" mapstructure:"specific_output" yaml:"specific_output"`
	Region           string   `json:"region" mapstructure:"region" yaml:"region"` // "x,y wxh"
	IncludeCursor    bool     `json:"include_cursor" mapstructure:"include_cursor" yaml:"include_cursor"`
	CompressionLevel int      `json:"compression_level" mapstructure:"compression_level" yaml:"compression_level"`
	SkipWhenLocked   bool     `json:"skip_when_locked" mapstructure:"skip_when_locked" yaml:"skip_when_locked"`
	CaptureOnStart   bool     `json:"capture_on_start" mapstructure:"capture_on_start" yaml:"capture_on_start"`
}

// CompositorConfig selects the window context adapter.
type CompositorConfig struct {
	Kind           string `json:"kind" mapstructure:"kind" yaml:"kind"` // auto, sway, hyprland, gnome, kde, none
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// OCRConfig holds text recognition settings
type OCRConfig struct {
	Enabled              bool    `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Binary               string  `json:"binary" mapstructure:"binary" yaml:"binary"`
	Language             string  `json:"language" mapstructure:"language" yaml:"language"`
	ConfidenceThreshold  float64 `json:"confidence_threshold" mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	Preprocess           bool    `json:"preprocess" mapstructure:"preprocess" yaml:"preprocess"`
	PageSegmentationMode int     `json:"page_segmentation_mode" mapstructure:"page_segmentation_mode" yaml:"page_segmentation_mode"`
	TimeoutSeconds       int     `json:"timeout_seconds" mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxKeywords          int     `json:"max_keywords" mapstructure:"max_keywords" yaml:"max_keywords"`
	DominantColors       int     `json:"dominant_colors" mapstructure:"dominant_colors" yaml:"dominant_colors"`
}

// PrivacyConfig holds content redaction settings
type PrivacyConfig struct {
	RedactSensitive     bool     `json:"redact_sensitive" mapstructure:"redact_sensitive" yaml:"redact_sensitive"`
	KeepSensitiveImages bool     `json:"keep_sensitive_images" mapstructure:"keep_sensitive_images" yaml:"keep_sensitive_images"`
	SensitiveKeywords   []string `json:"sensitive_keywords" mapstructure:"sensitive_keywords" yaml:"sensitive_keywords"`
	SensitivePatterns   []string `json:"sensitive_patterns" mapstructure:"sensitive_patterns" yaml:"sensitive_patterns"`
}

// StorageConfig holds memory store settings
type StorageConfig struct {
	RetentionDays   int    `json:"retention_days" mapstructure:"retention_days" yaml:"retention_days"`
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule" yaml:"cleanup_schedule"`
	DatabasePath    string `json:"database_path" mapstructure:"database_path" yaml:"database_path"`
	Thumbnails      bool   `json:"thumbnails" mapstructure:"thumbnails" yaml:"thumbnails"`
	ThumbnailWidth  int    `json:"thumbnail_width" mapstructure:"thumbnail_width" yaml:"thumbnail_width"`
	WatchImages     bool   `json:"watch_images" mapstructure:"watch_images" yaml:"watch_images"`
	SearchCacheMB   int    `json:"search_cache_mb" mapstructure:"search_cache_mb" yaml:"search_cache_mb"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level" yaml:"level"`
	File      string `json:"file" mapstructure:"file" yaml:"file"`
	Console   bool   `json:"console" mapstructure:"console" yaml:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty" yaml:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size" yaml:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age" yaml:"max_age"`    // days
	Compress  bool   `json:"compress" mapstructure:"compress" yaml:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction" yaml:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file" yaml:"audit_file"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `json:"listen" mapstructure:"listen" yaml:"listen"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			IntervalMinutes:  1,
			JitterSeconds:    0,
			ExcludeWindows:   []string{},
			Binary:           "grim",
			TimeoutSeconds:   10,
			OutputSelection:  "all",
			CompressionLevel: 6,
			SkipWhenLocked:   true,
			CaptureOnStart:   true,
		},
		Compositor: CompositorConfig{
			Kind:           "auto",
			TimeoutSeconds: 2,
		},
		OCR: OCRConfig{
			Enabled:              true,
			Binary:               "tesseract",
			Language:             "eng",
			ConfidenceThreshold:  60,
			Preprocess:           true,
			PageSegmentationMode: 6,
			TimeoutSeconds:       30,
			MaxKeywords:          15,
			DominantColors:       5,
		},
		Privacy: PrivacyConfig{
			RedactSensitive:     true,
			KeepSensitiveImages: true,
			SensitiveKeywords:   []string{},
			SensitivePatterns:   []string{},
		},
		Storage: StorageConfig{
			RetentionDays:   30,
			CleanupSchedule: "0 3 * * *",
			Thumbnails:      true,
			ThumbnailWidth:  320,
			WatchImages:     true,
			SearchCacheMB:   16,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    false,
			MaxSize:   20,
			MaxAge:    14,
			Compress:  true,
			Redaction: true,
		},
	}
}

// Interval returns the capture interval as a duration.
func (c CaptureConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes * float64(time.Minute))
}

// Jitter returns the maximum random offset applied to each interval.
func (c CaptureConfig) Jitter() time.Duration {
	return time.Duration(c.JitterSeconds) * time.Second
}

// Timeout returns the capture tool deadline.
func (c CaptureConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-query deadline for the compositor adapter.
func (c CompositorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the OCR engine deadline.
func (c OCRConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// ToYAML renders the effective configuration as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

var regionPattern = regexp.MustCompile(`^-?\d+,-?\d+ \d+x\d+$`)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Capture.IntervalMinutes <= 0 {
		return fmt.Errorf("capture.interval_minutes must be positive, got %v", c.Capture.IntervalMinutes)
	}
	if c.Capture.JitterSeconds < 0 {
		return fmt.Errorf("capture.jitter_seconds cannot be negative")
	}
	if c.Capture.Jitter() >= c.Capture.Interval() && c.Capture.JitterSeconds > 0 {
		return fmt.Errorf("capture.jitter_seconds must be shorter than the capture interval")
	}
	if c.Capture.TimeoutSeconds <= 0 {
		return fmt.Errorf("capture.timeout_seconds must be positive")
	}
	if c.Capture.CompressionLevel < 0 || c.Capture.CompressionLevel > 9 {
		return fmt.Errorf("capture.compression_level must be between 0 and 9, got %d", c.Capture.CompressionLevel)
	}
	switch c.Capture.OutputSelection {
	case "all", "primary":
	case "specific":
		if c.Capture.SpecificOutput == "" && c.Capture.Region == "" {
			return fmt.Errorf("capture.output_selection is specific but neither specific_output nor region is set")
		}
	default:
		return fmt.Errorf("invalid capture.output_selection: %s (must be one of: all, primary, specific)", c.Capture.OutputSelection)
	}
	if c.Capture.Region != "" && !regionPattern.MatchString(c.Capture.Region) {
		return fmt.Errorf("invalid capture.region %q (expected \"x,y wxh\")", c.Capture.Region)
	}

	v := NewValidator()
	if err := v.ValidateExcludeWindows(c.Capture.ExcludeWindows); err != nil {
		return err
	}
	if err := v.ValidateCompositorKind(c.Compositor.Kind); err != nil {
		return err
	}
	if c.Compositor.TimeoutSeconds <= 0 {
		return fmt.Errorf("compositor.timeout_seconds must be positive")
	}

	if c.OCR.Enabled {
		if err := v.ValidateLanguage(c.OCR.Language); err != nil {
			return err
		}
		if c.OCR.TimeoutSeconds <= 0 {
			return fmt.Errorf("ocr.timeout_seconds must be positive")
		}
	}
	if err := v.ValidateConfidence(c.OCR.ConfidenceThreshold); err != nil {
		return err
	}
	if c.OCR.MaxKeywords < 0 {
		return fmt.Errorf("ocr.max_keywords cannot be negative")
	}
	if c.OCR.DominantColors < 0 || c.OCR.DominantColors > 16 {
		return fmt.Errorf("ocr.dominant_colors must be between 0 and 16")
	}

	for _, p := range c.Privacy.SensitivePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid privacy.sensitive_patterns entry %q: %w", p, err)
		}
	}

	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days cannot be negative")
	}
	if c.Storage.CleanupSchedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Storage.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid storage.cleanup_schedule: %w", err)
		}
	}
	if c.Storage.Thumbnails && c.Storage.ThumbnailWidth <= 0 {
		return fmt.Errorf("storage.thumbnail_width must be positive when thumbnails are enabled")
	}

	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}
