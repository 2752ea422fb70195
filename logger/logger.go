package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel is the node-facing log level, mapped onto logrus levels.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARNING:
		return "warning"
	case ERROR:
		return "error"
	case FATAL:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	mu  sync.RWMutex
	std = newLogger()
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return l
}

// GetLogger returns the underlying logrus logger.
func GetLogger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

func SetLevel(level LogLevel) {
	GetLogger().SetLevel(toLogrus(level))
}

func GetLevel() LogLevel {
	switch GetLogger().GetLevel() {
	case logrus.TraceLevel, logrus.DebugLevel:
		return DEBUG
	case logrus.InfoLevel:
		return INFO
	case logrus.WarnLevel:
		return WARNING
	case logrus.ErrorLevel:
		return ERROR
	default:
		return FATAL
	}
}

// SetFormat switches between "text" (default) and "json" output.
func SetFormat(format string) {
	l := GetLogger()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}
}

func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

func toLogrus(level LogLevel) logrus.Level {
	switch level {
	case DEBUG:
		return logrus.DebugLevel
	case INFO:
		return logrus.InfoLevel
	case WARNING:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	case FATAL:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

func Debug(args ...interface{})                   { GetLogger().Debug(args...) }
func Debugf(format string, args ...interface{})   { GetLogger().Debugf(format, args...) }
func Info(args ...interface{})                    { GetLogger().Info(args...) }
func Infof(format string, args ...interface{})    { GetLogger().Infof(format, args...) }
func Warning(args ...interface{})                 { GetLogger().Warn(args...) }
func Warningf(format string, args ...interface{}) { GetLogger().Warnf(format, args...) }
func Error(args ...interface{})                   { GetLogger().Error(args...) }
func Errorf(format string, args ...interface{})   { GetLogger().Errorf(format, args...) }
func Fatal(args ...interface{})                   { GetLogger().Fatal(args...) }
func Fatalf(format string, args ...interface{})   { GetLogger().Fatalf(format, args...) }

// LogBlockEvent records a sealed block with structured fields.
func LogBlockEvent(number uint64, hash string, difficulty int, attempts uint64, miner string) {
	GetLogger().WithFields(logrus.Fields{
		"event":      "block_mined",
		"number":     number,
		"hash":       hash,
		"difficulty": difficulty,
		"attempts":   attempts,
		"miner":      miner,
	}).Info("Block sealed")
}
