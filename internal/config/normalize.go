package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDetect()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	c.Paths.TargetDir = strings.TrimSpace(c.Paths.TargetDir)
	if c.Paths.TargetDir == "" {
		if value, ok := os.LookupEnv("CARDBOX_TARGET_DIR"); ok {
			c.Paths.TargetDir = strings.TrimSpace(value)
		}
	}
	if c.Paths.TargetDir != "" {
		if c.Paths.TargetDir, err = expandPath(c.Paths.TargetDir); err != nil {
			return fmt.Errorf("paths.target_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDetect() {
	if c.Detect.PollInterval <= 0 {
		c.Detect.PollInterval = defaultPollInterval
	}
	prefixes := make([]string, 0, len(c.Detect.MediaPrefixes))
	for _, prefix := range c.Detect.MediaPrefixes {
		trimmed := strings.TrimSpace(prefix)
		if trimmed == "" {
			continue
		}
		prefixes = append(prefixes, filepath.Clean(trimmed))
	}
	if len(prefixes) == 0 {
		prefixes = append(prefixes, defaultMediaPrefixes...)
	}
	c.Detect.MediaPrefixes = prefixes

	patterns := make([]string, 0, len(c.Detect.DevicePatterns))
	for _, pattern := range c.Detect.DevicePatterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" {
			continue
		}
		patterns = append(patterns, trimmed)
	}
	if len(patterns) == 0 {
		patterns = append(patterns, defaultDevicePatterns...)
	}
	c.Detect.DevicePatterns = patterns
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("CARDBOX_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
