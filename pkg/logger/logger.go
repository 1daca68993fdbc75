// Package logger provides opinionated logging capabilities for the chronicle system
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLoggerWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	return newLogger(debug, zapcore.CapitalColorLevelEncoder, writers...)
}

// NewPlainLogger is NewLoggerWithWriters without color codes, for files and
// non-terminal output.
func NewPlainLogger(debug bool, writers ...io.Writer) *zap.Logger {
	return newLogger(debug, zapcore.CapitalLevelEncoder, writers...)
}

func newLogger(debug bool, levelEncoder zapcore.LevelEncoder, writers ...io.Writer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = levelEncoder

	// Set log level
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, writer := range writers {
		syncers = append(syncers, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)

	return zap.New(core, zap.AddCaller())
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
