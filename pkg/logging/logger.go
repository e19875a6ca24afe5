package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger provides structured logging on top of zap. Every entry carries the
// pid because suites re-execute themselves as child processes.
type Logger struct {
	level      Level
	jsonFormat bool
	zl         *zap.Logger
	logFile    *os.File
}

// NewLogger creates a logger writing to stderr.
func NewLogger(level Level, jsonFormat bool) *Logger {
	l := &Logger{level: level, jsonFormat: jsonFormat}
	l.zl = l.build(os.Stderr)
	return l
}

// NewFileLogger creates a logger that writes to path and to stderr.
func NewFileLogger(path string, level Level, jsonFormat bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	l := &Logger{level: level, jsonFormat: jsonFormat, logFile: logFile}
	l.zl = l.build(io.MultiWriter(logFile, os.Stderr))
	l.Debug("Logger initialized", map[string]interface{}{"path": path})
	return l, nil
}

func (l *Logger) build(w io.Writer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"

	var enc zapcore.Encoder
	if l.jsonFormat {
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), l.level.zapLevel())
	return zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zapcore.FatalLevel),
		zap.WithFatalHook(assertHook{}),
		zap.Fields(zap.Int("pid", os.Getpid())),
	)
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.zl = l.build(w)
}

// Level returns the minimum level written.
func (l *Logger) Level() Level {
	return l.level
}

func (l *Logger) log(depth int, level Level, message string, fields map[string]interface{}) {
	zl := l.zl
	if depth > 0 {
		zl = zl.WithOptions(zap.AddCallerSkip(depth))
	}
	zfields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}
	zl.Log(level.zapLevel(), message, zfields...)
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(0, DEBUG, message, firstFields(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(0, INFO, message, firstFields(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(0, WARN, message, firstFields(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(0, ERROR, message, firstFields(fields))
}

// Fatal logs a fatal message and hands it to the installed assert handler.
// Without a handler the process exits with status 1.
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(0, FATAL, message, firstFields(fields))
}

// FatalDepth is Fatal with the reported caller moved depth frames up the stack.
func (l *Logger) FatalDepth(depth int, message string) {
	l.log(depth, FATAL, message, nil)
}

// WithField adds a field to the logger context. The derived logger shares
// the log file; closing either closes it.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		level:      l.level,
		jsonFormat: l.jsonFormat,
		zl:         l.zl.With(zap.Any(key, value)),
		logFile:    l.logFile,
	}
}

// Logr returns a logr view of this logger.
func (l *Logger) Logr() logr.Logger {
	return zapr.NewLogger(l.zl.WithOptions(zap.AddCallerSkip(-2)))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	_ = l.zl.Sync()
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	case "FATAL", "fatal":
		return FATAL
	default:
		return INFO
	}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewLogger(INFO, false)
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger and returns the previous one.
func SetDefault(l *Logger) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultLogger
	defaultLogger = l
	return prev
}
