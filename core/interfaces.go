package core

import (
	"context"
	"time"
)

// Logger interface - simple logging abstraction shared by every storefront component.
// Fields are passed as a map so call sites stay structured regardless of backend.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// ComponentAwareLogger is implemented by loggers that can tag output with the
// component that produced it.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Memory is the local durable storage used by the storefront: a string-keyed,
// string-valued store. Components never rely on expiry; ttl is honoured by
// implementations that support it and 0 means "keep forever".
type Memory interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// ComponentLogger returns logger tagged with component when it supports it,
// and logger itself otherwise. A nil logger yields a NoOpLogger.
func ComponentLogger(logger Logger, component string) Logger {
	if logger == nil {
		return &NoOpLogger{}
	}
	if cal, ok := logger.(ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return logger
}
