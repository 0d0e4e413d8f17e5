package logging

import "go.uber.org/zap/zapcore"

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the minimum level that is actually emitted.
	Level zapcore.Level `yaml:"level"`
}

// DefaultConfig returns the logging configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Level: zapcore.InfoLevel,
	}
}
