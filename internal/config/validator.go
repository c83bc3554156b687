package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator validates individual configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var languagePattern = regexp.MustCompile(`^[a-z]{3}(_[a-z]+)?(\+[a-z]{3}(_[a-z]+)?)*$`)

// ValidateLanguage checks an OCR language list such as "eng" or "eng+chi_sim".
func (v *Validator) ValidateLanguage(lang string) error {
	if lang == "" {
		return fmt.Errorf("ocr.language cannot be empty")
	}
	if !languagePattern.MatchString(lang) {
		return fmt.Errorf("invalid ocr.language %q (expected codes like eng or eng+deu)", lang)
	}
	return nil
}

// ValidateConfidence validates an OCR confidence threshold
func (v *Validator) ValidateConfidence(threshold float64) error {
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("ocr.confidence_threshold must be between 0 and 100, got %v", threshold)
	}
	return nil
}

// ValidateCompositorKind validates a compositor selection
func (v *Validator) ValidateCompositorKind(kind string) error {
	validKinds := []string{"auto", "sway", "hyprland", "gnome", "kde", "none"}
	for _, valid := range validKinds {
		if kind == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid compositor.kind: %s (must be one of: %s)", kind, strings.Join(validKinds, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateExcludeWindows rejects blank entries, which would match every window.
func (v *Validator) ValidateExcludeWindows(entries []string) error {
	for i, e := range entries {
		if strings.TrimSpace(e) == "" {
			return fmt.Errorf("capture.exclude_windows[%d] is blank", i)
		}
	}
	return nil
}

// ValidateConfig collects every problem instead of stopping at the first.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidateExcludeWindows(cfg.Capture.ExcludeWindows); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateCompositorKind(cfg.Compositor.Kind); err != nil {
		errs = append(errs, err)
	}
	if cfg.OCR.Enabled {
		if err := v.ValidateLanguage(cfg.OCR.Language); err != nil {
			errs = append(errs, err)
		}
	}
	if err := v.ValidateConfidence(cfg.OCR.ConfidenceThreshold); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
