package logger

import (
	"time"

	"go.uber.org/zap"
)

// String builds a string field.
func String(key, val string) Field {
	return zap.String(key, val)
}

// Int builds an int field.
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Bool builds a bool field.
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Duration builds a duration field, used by the request-logging middleware.
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Error builds a field from an error under the "error" key.
func Error(err error) Field {
	return zap.Error(err)
}

// Any builds a field from an arbitrary value, e.g. run stat counters.
func Any(key string, val any) Field {
	return zap.Any(key, val)
}
