package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

var zapLockedStdout = os.Stdout

const redactedPlaceholder = "[REDACTED]"

// redactingCore wraps a zapcore.Core and scrubs the value of any field
// whose key matches the configured redaction set before it reaches the
// wrapped core's encoder.
type redactingCore struct {
	zapcore.Core
	fields map[string]struct{}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.scrub(fields)), fields: c.fields}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.scrub(fields))
}

func (c *redactingCore) scrub(fields []zapcore.Field) []zapcore.Field {
	if len(c.fields) == 0 {
		return fields
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		if _, redact := c.fields[f.Key]; redact {
			f = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: redactedPlaceholder}
		}
		out[i] = f
	}
	return out
}
