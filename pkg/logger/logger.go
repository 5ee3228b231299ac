package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// CycleIDKey is the context key for the poll cycle ID
	CycleIDKey ContextKey = "cycle_id"
	// DocumentIDKey is the context key for the paperless document ID
	DocumentIDKey ContextKey = "document_id"
	// StampTypeKey is the context key for the stamp type being processed
	StampTypeKey ContextKey = "stamp_type"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Init initializes the global slog logger with the given configuration
func Init(cfg *Config) {
	InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter is Init with an explicit output
func InitWithWriter(cfg *Config, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// WithContext returns a logger with context values extracted
func WithContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	if cycleID, ok := ctx.Value(CycleIDKey).(string); ok && cycleID != "" {
		logger = logger.With("cycle_id", cycleID)
	}
	if documentID, ok := ctx.Value(DocumentIDKey).(int); ok {
		logger = logger.With("document_id", documentID)
	}
	if stampType, ok := ctx.Value(StampTypeKey).(string); ok && stampType != "" {
		logger = logger.With("stamp_type", stampType)
	}

	return logger
}

// WithCycle returns ctx tagged with a poll cycle ID
func WithCycle(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

// WithDocument returns ctx tagged with a document ID
func WithDocument(ctx context.Context, documentID int) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

// CycleID returns the poll cycle ID stored in ctx
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(CycleIDKey).(string)
	return id
}

// Info logs at info level with context
func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// Debug logs at debug level with context
func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

// Warn logs at warn level with context
func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// Error logs at error level with context
func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// WithStampType returns ctx tagged with the stamp type being processed
func WithStampType(ctx context.Context, stampType string) context.Context {
	return context.WithValue(ctx, StampTypeKey, stampType)
}
