package core

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ProductionLogger implements Logger on top of zap. Output goes to stdout and,
// when enabled, to a size-rotated file.
type ProductionLogger struct {
	zl        *zap.Logger
	component string
}

// NewProductionLogger builds a zap-backed logger from the logging configuration
func NewProductionLogger(cfg LoggingConfig) (*ProductionLogger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, ErrInvalidConfiguration)
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	out := zapcore.AddSync(os.Stdout)
	if cfg.Output == "stderr" {
		out = zapcore.AddSync(os.Stderr)
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, out, level)}

	if cfg.FileEnable {
		if cfg.Filename == "" {
			return nil, fmt.Errorf("log filename is required when file logging is enabled: %w", ErrMissingConfiguration)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			level,
		))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &ProductionLogger{zl: zl}, nil
}

// NewZapLogger wraps an existing zap logger
func NewZapLogger(zl *zap.Logger) *ProductionLogger {
	return &ProductionLogger{zl: zl}
}

// WithComponent returns a child logger tagged with component
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		zl:        l.zl.With(zap.String("component", component)),
		component: component,
	}
}

// Sync flushes buffered entries
func (l *ProductionLogger) Sync() error {
	return l.zl.Sync()
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.zl.Info(msg, toZapFields(fields)...)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.zl.Error(msg, toZapFields(fields)...)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.zl.Warn(msg, toZapFields(fields)...)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.zl.Debug(msg, toZapFields(fields)...)
}

func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
