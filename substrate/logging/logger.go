// Package logging provides the component-scoped structured logger used
// throughout substrate, following the shape of the teacher's
// kernel/utils.Logger (NewLogger/DefaultLogger/.With) but backed by zap
// instead of a hand-rolled ANSI formatter.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger scoped to a single component name.
type Logger struct {
	zap       *zap.Logger
	component string
	level     *zap.AtomicLevel
}

// Config configures a Logger.
type Config struct {
	Component string
	Debug     bool
}

// New creates a Logger for the given component. Debug raises the level to
// zap.DebugLevel; it never gates functional behavior, only verbosity.
func New(cfg Config) *Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := zcfg.Build()
	if err != nil {
		base = zap.NewNop()
	}

	return &Logger{
		zap:       base.With(zap.String("component", cfg.Component)),
		component: cfg.Component,
		level:     &level,
	}
}

// Nop returns a Logger that discards everything; useful as a default for
// components constructed without an explicit logger.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: new(zap.AtomicLevel)}
}

// With returns a new Logger with the given component suffix and fields
// attached, mirroring the teacher's Logger.With semantics.
func (l *Logger) With(component string, fields ...zap.Field) *Logger {
	name := l.component
	if component != "" {
		if name != "" {
			name = name + "." + component
		} else {
			name = component
		}
	}
	child := l.zap.With(fields...)
	if component != "" {
		child = child.With(zap.String("component", name))
	}
	return &Logger{zap: child, component: name, level: l.level}
}

// SetDebug toggles the debug verbosity level at runtime.
func (l *Logger) SetDebug(on bool) {
	if on {
		l.level.SetLevel(zapcore.DebugLevel)
	} else {
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.zap.Sync() }
