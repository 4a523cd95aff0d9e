// Package logging builds the application's zap logger.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON production logger at the given level. The
// detailed flag forces debug regardless of the configured level,
// mirroring the runtime detailed-logging toggle. The returned atomic
// level lets the daemon re-apply the toggle while running.
func New(level string, detailed bool) (*zap.Logger, zap.AtomicLevel, error) {
	lvl := BaseLevel(level)
	if detailed {
		lvl = zapcore.DebugLevel
	}
	atomicLvl := zap.NewAtomicLevelAt(lvl)

	zc := zap.Config{
		Level:            atomicLvl,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zc.Build()
	return logger, atomicLvl, err
}

// BaseLevel parses a configured level name, falling back to info.
func BaseLevel(level string) zapcore.Level {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(strings.ToLower(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	return lvl
}

// ApplyDetailed sets the level to debug when detailed is on and back
// to the base level when it is off.
func ApplyDetailed(atomicLvl zap.AtomicLevel, base zapcore.Level, detailed bool) {
	if detailed {
		atomicLvl.SetLevel(zapcore.DebugLevel)
		return
	}
	atomicLvl.SetLevel(base)
}
