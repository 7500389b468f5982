package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDetect(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.TargetDir == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/cardbox/config.toml"
		}
		return fmt.Errorf("paths.target_dir is required. Set CARDBOX_TARGET_DIR or edit %s (create with 'cardbox config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateDetect() error {
	if c.Detect.PollInterval <= 0 {
		return errors.New("detect.poll_interval must be positive")
	}
	for _, pattern := range c.Detect.DevicePatterns {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("detect.device_patterns: invalid pattern %q: %w", pattern, err)
		}
	}
	for _, prefix := range c.Detect.MediaPrefixes {
		if !filepath.IsAbs(prefix) {
			return fmt.Errorf("detect.media_prefixes: %q is not absolute", prefix)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
