// Package logging provides the structured logger surface every component in
// this module takes by constructor injection: Infow/Warnw/Errorw/Debugw
// plus printf-style variants, backed by a zap.SugaredLogger.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the structured logging interface passed to every component.
// No component reaches for a package-global logger.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a Logger backed by a production zap configuration.
func New() (Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: l.Sugar()}, nil
}

// NewDevelopment builds a Logger with human-readable console output, used by
// cmd/aicallswitch in local/dev mode.
func NewDevelopment() (Logger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: l.Sugar()}, nil
}

// NewNop builds a Logger that discards everything, used in tests.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (z *zapLogger) Debug(args ...interface{})                       { z.s.Debug(args...) }
func (z *zapLogger) Debugf(format string, args ...interface{})       { z.s.Debugf(format, args...) }
func (z *zapLogger) Debugw(msg string, kv ...interface{})            { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(args ...interface{})                        { z.s.Info(args...) }
func (z *zapLogger) Infof(format string, args ...interface{})        { z.s.Infof(format, args...) }
func (z *zapLogger) Infow(msg string, kv ...interface{})             { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(args ...interface{})                        { z.s.Warn(args...) }
func (z *zapLogger) Warnf(format string, args ...interface{})        { z.s.Warnf(format, args...) }
func (z *zapLogger) Warnw(msg string, kv ...interface{})             { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(args ...interface{})                       { z.s.Error(args...) }
func (z *zapLogger) Errorf(format string, args ...interface{})       { z.s.Errorf(format, args...) }
func (z *zapLogger) Errorw(msg string, kv ...interface{})            { z.s.Errorw(msg, kv...) }
func (z *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: z.s.With(kv...)}
}
