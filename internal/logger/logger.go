// Package logger provides structured logging with context propagation for the Messari collector.
// It builds slog handlers from configuration, optionally writing to a rotating file,
// and carries run-scoped values (trace id, asset, operation) through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/go-messari-collector/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// TraceIDKey is the context key for the run trace ID
	TraceIDKey ContextKey = "trace_id"
	// AssetKey is the context key for the asset symbol being processed
	AssetKey ContextKey = "asset"
	// OperationKey is the context key for operation name
	OperationKey ContextKey = "operation"
)

// LoggerManager manages structured logging for the application
type LoggerManager struct {
	baseLogger *slog.Logger
	config     config.LoggingConfig
	writer     io.WriteCloser
}

// NewLoggerManager creates a new logger manager from the logging configuration
func NewLoggerManager(cfg config.LoggingConfig) (*LoggerManager, error) {
	writer, err := createWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	return newLoggerManager(cfg, writer), nil
}

// NewLoggerManagerWithWriter builds a manager that writes to w regardless of cfg.Output.
func NewLoggerManagerWithWriter(cfg config.LoggingConfig, w io.Writer) *LoggerManager {
	return newLoggerManager(cfg, nopWriteCloser{w})
}

func newLoggerManager(cfg config.LoggingConfig, writer io.WriteCloser) *LoggerManager {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	if len(cfg.ContextFields) > 0 {
		attrs := make([]slog.Attr, 0, len(cfg.ContextFields))
		for key, value := range cfg.ContextFields {
			attrs = append(attrs, slog.String(key, value))
		}
		handler = handler.WithAttrs(attrs)
	}

	return &LoggerManager{
		baseLogger: slog.New(handler),
		config:     cfg,
		writer:     writer,
	}
}

// createWriter creates the appropriate writer based on configuration
func createWriter(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "stdout":
		return nopWriteCloser{os.Stdout}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path is required when output is 'file'")
		}

		dir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}, nil
	default:
		// stdout carries the rendered tables, so logs go to stderr
		return nopWriteCloser{os.Stderr}, nil
	}
}

// nopWriteCloser wraps an io.Writer to provide a Close method
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// ParseLevel converts string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns the base logger instance
func (lm *LoggerManager) GetLogger() *slog.Logger {
	return lm.baseLogger
}

// GetComponentLogger returns a logger tagged with the component name
func (lm *LoggerManager) GetComponentLogger(component string) *slog.Logger {
	return lm.baseLogger.With(slog.String("component", component))
}

// Close closes the logger and any associated resources
func (lm *LoggerManager) Close() error {
	if lm.writer != nil {
		return lm.writer.Close()
	}
	return nil
}

// NewTraceID returns a fresh identifier for one collector run
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithAsset adds an asset symbol to the context
func WithAsset(ctx context.Context, asset string) context.Context {
	return context.WithValue(ctx, AssetKey, asset)
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// GetTraceID extracts the trace ID from context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// FromContext returns logger enriched with any trace, asset and operation
// values stored in ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	var attrs []interface{}

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if asset, ok := ctx.Value(AssetKey).(string); ok && asset != "" {
		attrs = append(attrs, slog.String("asset", asset))
	}
	if operation, ok := ctx.Value(OperationKey).(string); ok && operation != "" {
		attrs = append(attrs, slog.String("operation", operation))
	}

	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// TimedOperation runs fn and logs its duration at debug, or the failure at error.
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string, fn func() error) error {
	start := time.Now()
	log := FromContext(WithOperation(ctx, operation), logger)

	err := fn()
	duration := time.Since(start)

	if err != nil {
		log.ErrorContext(ctx, "operation failed",
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return err
	}

	log.DebugContext(ctx, "operation completed", slog.Duration("duration", duration))
	return nil
}
