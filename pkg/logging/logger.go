// Package logging provides structured logging on top of go.uber.org/zap:
// a thin Logger wrapper, a process-wide global instance, and a set of
// domain field constructors (Exchange, Symbol, Spread, Latency, ...) so
// call sites read like log lines instead of key/value soup.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls how a Logger is built.
type LogConfig struct {
	Level       string // debug|info|warn|error|fatal, default info
	Format      string // json|console, default json
	Output      string // "stdout" or a file path, default stdout
	Development bool   // enables zap development mode and stack traces at Warn+
}

// Logger wraps a *zap.Logger plus a cached sugared logger for call sites
// that prefer printf-style formatting.
type Logger struct {
	Logger *zap.Logger
	sugar  *zap.SugaredLogger
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	case "info", "":
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger builds a Logger from config. Unknown levels default to info.
func InitLogger(config LogConfig) *Logger {
	level := parseLevel(config.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(config.Format, "console") {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	sink := zapcore.AddSync(zapOutput(config.Output))
	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if config.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// With returns a new Logger carrying the given fields on every subsequent call.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }
func (l *Logger) WithExchange(id string) *Logger     { return l.With(Exchange(id)) }
func (l *Logger) WithSymbol(symbol string) *Logger   { return l.With(Symbol(symbol)) }

func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }

// SugarWith returns a sugared logger carrying fields, for call sites mixing
// structured fields with printf-style messages.
func (l *Logger) SugarWith(fields ...zap.Field) *zap.SugaredLogger {
	return l.sugar.With(fieldsToInterface(fields)...)
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.Logger.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.Logger.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.Logger.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.Logger.Error(msg, fields...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Global logger ---------------------------------------------------------

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitGlobalLogger builds a Logger from config and installs it as the global.
func InitGlobalLogger(config LogConfig) *Logger {
	l := InitLogger(config)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs an already-built Logger as the global instance.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger returns the global instance, initializing a default
// (info/json/stdout) one on first use if none was set.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	return InitGlobalLogger(LogConfig{Level: "info", Format: "json", Output: "stdout"})
}

// L is a short alias for GetGlobalLogger, for terse call sites.
func L() *Logger { return GetGlobalLogger() }

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { L().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().Errorf(format, args...) }
