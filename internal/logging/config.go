// Package logging wraps zap with the engine's structured-field and
// redaction conventions. Loggers are constructed explicitly and passed
// down; there is no package-level global.
package logging

import (
	"go.uber.org/zap/zapcore"
)

// Config controls how a Logger is built.
type Config struct {
	Level     zapcore.Level     `koanf:"level"`
	Format    string            `koanf:"format"`
	Caller    CallerConfig      `koanf:"caller"`
	Fields    map[string]string `koanf:"fields"`
	Redaction RedactionConfig   `koanf:"redaction"`
}

// CallerConfig controls caller annotation on log lines.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// RedactionConfig names fields/patterns scrubbed before a record is
// emitted, so connection strings and API keys never reach log output.
type RedactionConfig struct {
	Enabled bool     `koanf:"enabled"`
	Fields  []string `koanf:"fields"`
}

// NewDefaultConfig returns the engine's production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Caller: CallerConfig{Enabled: true, Skip: 1},
		Fields: map[string]string{
			"service": "codesearch",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields:  []string{"password", "dsn", "api_key", "authorization", "bearer", "token"},
		},
	}
}
