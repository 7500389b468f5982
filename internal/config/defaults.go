package config

const (
	defaultLogDir       = "~/.local/share/cardbox/logs"
	defaultPollInterval = 5
	defaultNtfyTimeout  = 10
)

var (
	defaultMediaPrefixes = []string{"/media", "/mnt"}

	// SD cards show up as mmcblk partitions; USB readers as sd* partitions.
	defaultDevicePatterns = []string{"sd[a-z]*", "mmcblk*"}
)

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Detect: Detect{
			PollInterval:   defaultPollInterval,
			MediaPrefixes:  append([]string{}, defaultMediaPrefixes...),
			DevicePatterns: append([]string{}, defaultDevicePatterns...),
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Ingest:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
