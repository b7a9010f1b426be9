package app

import (
	"strings"

	"github.com/charlesng35/waitlist/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
func ConfigureLogging(level string) error {
	return ConfigureLoggingWithEncoding(level, "")
}

// ConfigureLoggingWithEncoding also selects the "json" or "console" encoder.
func ConfigureLoggingWithEncoding(level, encoding string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.InitWithOptions(logger.Options{Level: level, Encoding: encoding})
}
