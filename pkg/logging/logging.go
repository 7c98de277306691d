// Package logging provides the package-level structured logger every
// domain package in this module logs through, mirroring the teacher's
// main.go configureLogging idiom: a single *zap.SugaredLogger built once
// at process start, with a level that can be raised from a CLI flag or
// environment variable after the fact.
package logging

import (
	"sync"

	"github.com/logrusorgru/aurora"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger *zap.SugaredLogger
)

func build() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		// Config is static and known-valid; a build failure here means the
		// zap API itself changed shape, not a runtime condition callers
		// can recover from.
		panic(err)
	}
	return l.Sugar()
}

// S returns the shared sugared logger, building it on first use.
func S() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = build()
	}
	return logger
}

// SetLevel raises or lowers the shared logger's level. Safe to call
// before or after S() has been used.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// ParseLevel maps a CLI/env string ("debug", "info", "warn", "error") to
// a zapcore.Level, defaulting to Info on an unrecognized value.
func ParseLevel(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// PassFail renders a colorized one-line pass/fail summary, used by
// cmd/netctl's end-of-run report.
func PassFail(name string, ok bool) string {
	if ok {
		return aurora.Sprintf(aurora.Green("%s: PASS"), name)
	}
	return aurora.Sprintf(aurora.Red("%s: FAIL"), name)
}
