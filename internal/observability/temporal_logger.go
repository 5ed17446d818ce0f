package observability

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// TemporalLogger adapts zerolog to the Temporal SDK's log.Logger and
// log.WithLogger interfaces.
type TemporalLogger struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*TemporalLogger)(nil)
	_ log.WithLogger = (*TemporalLogger)(nil)
)

// NewTemporalLogger creates a TemporalLogger tagged "component":"temporal-sdk".
func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug().Fields(keyvalToMap(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info().Fields(keyvalToMap(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn().Fields(keyvalToMap(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error().Fields(keyvalToMap(keyvals)).Msg(msg)
}

// With returns a logger that adds keyvals to every entry. The SDK uses it
// to attach workflow and activity identifiers.
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{logger: l.logger.With().Fields(keyvalToMap(keyvals)).Logger()}
}

// keyvalToMap converts alternating key-value pairs to a map for zerolog
// fields. A trailing key without a value is dropped.
func keyvalToMap(keyvals []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		m[key] = keyvals[i+1]
	}
	return m
}
