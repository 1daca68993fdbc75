package logger

import (
	"io"
	"maps"
	"slices"

	charmlog "github.com/charmbracelet/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewPrettyLogger returns a zap logger that renders through charmbracelet/log,
// for human-facing CLI output.
func NewPrettyLogger(debug bool, w io.Writer) *zap.Logger {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	cl := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           charmlog.DebugLevel,
	})

	return zap.New(&charmCore{LevelEnabler: level, l: cl})
}

// charmCore is a zapcore.Core writing entries to a charm logger. Fields are
// flattened with a map encoder and emitted as sorted key/value pairs.
type charmCore struct {
	zapcore.LevelEnabler
	l      *charmlog.Logger
	fields []zapcore.Field
}

func (c *charmCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(slices.Clone(c.fields), fields...)
	return &clone
}

func (c *charmCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *charmCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	keyvals := make([]any, 0, 2*len(enc.Fields))
	for _, k := range slices.Sorted(maps.Keys(enc.Fields)) {
		keyvals = append(keyvals, k, enc.Fields[k])
	}

	c.l.Log(charmLevel(ent.Level), ent.Message, keyvals...)
	return nil
}

func (c *charmCore) Sync() error {
	return nil
}

// charmLevel maps zap levels onto charm levels. Panic and fatal entries are
// logged as errors; zap performs the panic or exit itself.
func charmLevel(l zapcore.Level) charmlog.Level {
	switch l {
	case zapcore.DebugLevel:
		return charmlog.DebugLevel
	case zapcore.InfoLevel:
		return charmlog.InfoLevel
	case zapcore.WarnLevel:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}
