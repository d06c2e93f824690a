package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dev.csaopt.io/csaopt/internal/core/ports"
)

// ZapLogger implementa la interfaz Logger usando zap.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// NewZapLogger crea una nueva instancia de ZapLogger con el nivel indicado.
func NewZapLogger(level string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: logger.Sugar()}, nil
}

// NewNop crea un logger que descarta todo. Pensado para tests.
func NewNop() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop().Sugar()}
}

// Debug implementa Logger.Debug
func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	l.logger.Debugw(msg, args...)
}

// Info implementa Logger.Info
func (l *ZapLogger) Info(msg string, args ...interface{}) {
	l.logger.Infow(msg, args...)
}

// Warn implementa Logger.Warn
func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	l.logger.Warnw(msg, args...)
}

// Error implementa Logger.Error
func (l *ZapLogger) Error(msg string, args ...interface{}) {
	l.logger.Errorw(msg, args...)
}

// With implementa Logger.With
func (l *ZapLogger) With(args ...interface{}) ports.Logger {
	return &ZapLogger{logger: l.logger.With(args...)}
}

// Sync vacía los buffers pendientes del logger subyacente.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
