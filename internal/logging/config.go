package logging

import (
	"log/slog"

	"cardbox/internal/config"
)

// NewFromConfig builds the daemon logger: configured format and level, to
// stdout and the daemon log file.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	return New(Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Sinks:  []string{"stdout", cfg.LogPath()},
	})
}
