package engine

import "log/slog"

// Logger is a thin *slog.Logger wrapper so the engine can be embedded as a
// library (default: slog.Default()) or wired up by cmd/soundrom with its
// own level/format, matching the pack's idiom of structured diagnostic
// logging (valerio-go-jeebie's cmd/jeebie/main.go configures slog.Default()
// at startup rather than threading a logger interface everywhere).
type Logger struct {
	l *slog.Logger
}

// NewLogger wraps an existing *slog.Logger, or slog.Default() if nil.
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{l: l}
}

func (lg *Logger) logger() *slog.Logger {
	if lg == nil || lg.l == nil {
		return slog.Default()
	}
	return lg.l
}

func (lg *Logger) Debug(msg string, args ...any) { lg.logger().Debug(msg, args...) }
func (lg *Logger) Info(msg string, args ...any)  { lg.logger().Info(msg, args...) }
func (lg *Logger) Warn(msg string, args ...any)  { lg.logger().Warn(msg, args...) }
func (lg *Logger) Error(msg string, args ...any) { lg.logger().Error(msg, args...) }
