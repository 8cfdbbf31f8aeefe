// Package core provides the shared logging setup for the collaboration
// services. Top-level helpers log through the process-wide logger;
// long-lived components take a scoped child via Named instead.
package core

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. Tests may swap it via SetLogger.
var Logger *zap.Logger

func init() {
	logger, err := build(false, zapcore.InfoLevel)
	if err != nil {
		logger = zap.NewNop()
	}
	Logger = logger
}

func build(development bool, level zapcore.Level) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// The package-level helpers add one frame; Named undoes the skip for
	// components that hold the logger directly.
	return config.Build(zap.AddCallerSkip(1))
}

// ConfigureLogger rebuilds the global logger. Unrecognized level strings
// keep the info default.
func ConfigureLogger(development bool, level string) error {
	parsed := zapcore.InfoLevel
	switch level {
	case "debug":
		parsed = zapcore.DebugLevel
	case "warn":
		parsed = zapcore.WarnLevel
	case "error":
		parsed = zapcore.ErrorLevel
	}
	logger, err := build(development, parsed)
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// Named returns a child of the global logger scoped to a component, with
// any extra fields attached to every entry it writes.
func Named(component string, fields ...zap.Field) *zap.Logger {
	return Logger.WithOptions(zap.AddCallerSkip(-1)).Named(component).With(fields...)
}

// SetLogger replaces the global logger.
func SetLogger(logger *zap.Logger) {
	Logger = logger
}

func Debug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Logger.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Logger.Error(msg, fields...)
}
