// Package obs contains observability utilities such as logging and tracing.
package obs

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is a thin key/value wrapper over a sugared zap logger.
type Log struct {
	s *zap.SugaredLogger
}

// Logger is the global structured logger used by the service.
//
// It discards everything until InitLogger is called, so packages and tests
// can log without any setup.
var Logger = &Log{s: zap.NewNop().Sugar()}

// InitLogger replaces the global Logger. Mode "development" selects a
// console encoder at debug level; anything else selects JSON at info level.
func InitLogger(mode string) error {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "dev", "development":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zl, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = &Log{s: zl.Sugar()}
	return nil
}

// NewLog wraps an existing zap logger.
func NewLog(zl *zap.Logger) *Log { return &Log{s: zl.Sugar()} }

func (l *Log) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *Log) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *Log) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *Log) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

// With returns a child logger carrying the given fields.
func (l *Log) With(kv ...any) *Log { return &Log{s: l.s.With(kv...)} }

// Sync flushes buffered entries.
func (l *Log) Sync() { _ = l.s.Sync() }
