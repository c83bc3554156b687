package config

// configSchema describes the on-disk shape of the config file. Value
// constraints that depend on other fields live in Config.Validate.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "data_dir": {"type": "string"},
    "capture": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "interval_minutes": {"type": "number", "exclusiveMinimum": 0},
        "jitter_seconds": {"type": "integer", "minimum": 0},
        "exclude_windows": {"type": "array", "items": {"type": "string"}},
        "binary": {"type": "string"},
        "timeout_seconds": {"type": "integer", "minimum": 1},
        "output_selection": {"enum": ["all", "primary", "specific"]},
        "specific_output": {"type": "string"},
        "region": {"type": "string"},
        "include_cursor": {"type": "boolean"},
        "compression_level": {"type": "integer", "minimum": 0, "maximum": 9},
        "skip_when_locked": {"type": "boolean"},
        "capture_on_start": {"type": "boolean"}
      }
    },
    "compositor": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "kind": {"enum": ["auto", "sway", "hyprland", "gnome", "kde", "none"]},
        "timeout_seconds": {"type": "integer", "minimum": 1}
      }
    },
    "ocr": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "binary": {"type": "string"},
        "language": {"type": "string", "minLength": 3},
        "confidence_threshold": {"type": "number", "minimum": 0, "maximum": 100},
        "preprocess": {"type": "boolean"},
        "page_segmentation_mode": {"type": "integer", "minimum": 0, "maximum": 13},
        "timeout_seconds": {"type": "integer", "minimum": 1},
        "max_keywords": {"type": "integer", "minimum": 0},
        "dominant_colors": {"type": "integer", "minimum": 0, "maximum": 16}
      }
    },
    "privacy": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "redact_sensitive": {"type": "boolean"},
        "keep_sensitive_images": {"type": "boolean"},
        "sensitive_keywords": {"type": "array", "items": {"type": "string"}},
        "sensitive_patterns": {"type": "array", "items": {"type": "string"}}
      }
    },
    "storage": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "retention_days": {"type": "integer", "minimum": 0},
        "cleanup_schedule": {"type": "string"},
        "database_path": {"type": "string"},
        "thumbnails": {"type": "boolean"},
        "thumbnail_width": {"type": "integer", "minimum": 1},
        "watch_images": {"type": "boolean"},
        "search_cache_mb": {"type": "integer", "minimum": 0}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "file": {"type": "string"},
        "console": {"type": "boolean"},
        "pretty": {"type": "boolean"},
        "max_size": {"type": "integer", "minimum": 0},
        "max_age": {"type": "integer", "minimum": 0},
        "compress": {"type": "boolean"},
        "redaction": {"type": "boolean"},
        "audit_file": {"type": "string"}
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "listen": {"type": "string"}
      }
    }
  }
}`
