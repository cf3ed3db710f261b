// Package logger provides opinionated logging capabilities for picochat
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a console logger on stderr. Stdout carries the chat transcript.
func NewLogger(debug bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	// Warn by default: the chat itself reports progress and errors on stdout
	level := zap.WarnLevel
	if debug {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	return zap.New(core, zap.AddCaller())
}

// Truncate shortens s for log previews, flattening newlines.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	flat := make([]rune, 0, len(runes))
	for _, r := range runes {
		if r == '\n' {
			r = ' '
		}
		flat = append(flat, r)
	}
	if len(flat) <= maxLen {
		return string(flat)
	}
	return string(flat[:maxLen]) + "..."
}
