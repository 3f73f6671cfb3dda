// Package logging builds the zap logger and carries request scoped loggers in a context.
package logging

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config options used in creating zap logger
type Config struct {
	FilePath string // optional, logs go to stderr otherwise
	Level    string
	Env      string // "production" selects the ECS json encoder
	AppID    string
}

type contextKey struct{}

// NewLogger build a logger for cfg.Env, stack traces are attached from error level up
func NewLogger(cfg *Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("Failed to create logger core: %w", err)
	}
	sink, err := openSink(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("Failed to create logger core: %w", err)
	}

	encoder := consoleEncoder()
	if cfg.Env == "production" {
		encoder = ecsEncoder()
	}
	logger := zap.New(zapcore.NewCore(encoder, sink, level),
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if cfg.AppID != "" {
		logger = logger.With(zap.String("service.id", cfg.AppID))
	}
	return logger, nil
}

// ParseLevel map a config level name to a zap level, empty means info
func ParseLevel(level string) (zapcore.Level, error) {
	var lv zapcore.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return zap.InfoLevel, fmt.Errorf("Unknown logging level: %s", level)
	}
	return lv, nil
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	if path == "" {
		return zapcore.Lock(os.Stderr), nil
	}
	fd, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return zapcore.Lock(fd), nil
}

func consoleEncoder() zapcore.Encoder {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.CallerKey = "log.origin.file.name"
	return zapcore.NewConsoleEncoder(ec)
}

// ecsEncoder field names follow the elastic common schema
func ecsEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "@timestamp"
	ec.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	ec.MessageKey = "message"
	ec.LevelKey = "log.level"
	ec.CallerKey = "log.origin.file.name"
	ec.StacktraceKey = "error.stack_trace"
	return zapcore.NewJSONEncoder(ec)
}

// SetLoggerInContext set logger into target context
func SetLoggerInContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// ExtractLoggerFromContext try to extract logger from context, returns a no-op logger if none was set
func ExtractLoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}
