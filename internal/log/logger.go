// Package log provides structured logging for lktrace using zap.
package log

import (
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the events the tracer reports.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger. Only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New builds a console logger on stderr. Debug mode logs every dispatch
// and kernel call; otherwise only warnings reach the terminal, so trace
// output on stdout stays clean.
func New(debug bool) *Logger {
	level := zap.WarnLevel
	if debug {
		level = zap.DebugLevel
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      debug,
		Encoding:         "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			MessageKey:     "msg",
			CallerKey:      "caller",
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}
	if debug {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg.EncoderConfig.CallerKey = zapcore.OmitKey
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	return &Logger{Logger: logger}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Get returns the global logger, or a no-op logger before Init.
func Get() *Logger {
	if L == nil {
		return NewNop()
	}
	return L
}

// Dispatch records that a syscall matched a dispatch table entry.
func (l *Logger) Dispatch(sysno uint64, phase, name string, actions int) {
	l.Debug("dispatch",
		zap.String("phase", phase),
		zap.String("sys", name),
		Sysno(sysno),
		zap.Int("actions", actions),
	)
}

// AllocFailed logs a skipped heap-sized extraction.
func (l *Logger) AllocFailed(sysno uint64, index int, size uint64) {
	l.Warn("payload allocation failed", Sysno(sysno), Index(index), zap.Uint64("size", size))
}

// ArrayTruncated logs a pointer array walk that hit its entry cap.
func (l *Logger) ArrayTruncated(sysno uint64, index int, base uint64, limit int) {
	l.Warn("pointer array truncated", Sysno(sysno), Index(index), Addr(base), zap.Int("limit", limit))
}

// Kernel logs a syscall serviced by the guest kernel.
func (l *Logger) Kernel(pc uint64, category, name, detail string) {
	l.Debug("kernel",
		zap.String("cat", category),
		zap.String("sys", name),
		zap.String("detail", detail),
		Ptr("pc", pc),
	)
}

// Hex formats v the way addresses appear in trace output.
func Hex(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Ptr creates a named pointer field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Sysno creates a syscall number field.
func Sysno(nr uint64) zap.Field {
	return zap.Uint64("nr", nr)
}

// Index creates a payload index field.
func Index(i int) zap.Field {
	return zap.Int("idx", i)
}
