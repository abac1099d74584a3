// Package logutil is the printf-style logging facade used across packages.
// A nil logger falls back to the global zap logger.
package logutil

import (
    "go.uber.org/zap"
)

func or(l *zap.Logger) *zap.Logger {
    if l == nil { return zap.L() }
    return l
}

// Named returns a child logger for a component, never nil.
func Named(l *zap.Logger, name string) *zap.Logger { return or(l).Named(name) }

func Debugf(l *zap.Logger, f string, args ...any) { or(l).WithOptions(zap.AddCallerSkip(1)).Sugar().Debugf(f, args...) }
func Infof(l *zap.Logger, f string, args ...any)  { or(l).WithOptions(zap.AddCallerSkip(1)).Sugar().Infof(f, args...) }
func Warnf(l *zap.Logger, f string, args ...any)  { or(l).WithOptions(zap.AddCallerSkip(1)).Sugar().Warnf(f, args...) }
func Errorf(l *zap.Logger, f string, args ...any) { or(l).WithOptions(zap.AddCallerSkip(1)).Sugar().Errorf(f, args...) }
