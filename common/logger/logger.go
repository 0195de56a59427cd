package logger

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

type Log interface {
	WithField(name string, value interface{}) Log
	WithFields(fields Fields) Log
	Trace(args ...interface{})
	Tracef(msg string, args ...interface{})
	Debug(args ...interface{})
	Debugf(msg string, args ...interface{})
	Info(args ...interface{})
	Infof(msg string, args ...interface{})
	Warn(args ...interface{})
	Warnf(msg string, args ...interface{})
	Error(args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(msg string, args ...interface{})
	Panic(args ...interface{})
	Panicf(msg string, args ...interface{})
	Print(args ...interface{})
}

// Fields is a set of keys/values to include in a structured log message.
type Fields map[string]interface{}

// LogFilePath is the file the CLI writes its logs to, so they don't interfere with the spinners.
type LogFilePath string

// LogFactory produces a logger that can be used to log messages for the
// specified subsystem.
type LogFactory func(subsystem string) Log

// LogrusLogger is a Log implementation backed by a logrus entry.
type LogrusLogger struct {
	*logrus.Entry
}

func (l *LogrusLogger) WithField(name string, value interface{}) Log {
	return &LogrusLogger{Entry: l.Entry.WithField(name, value)}
}

func (l *LogrusLogger) WithFields(fields Fields) Log {
	return &LogrusLogger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// MakeLogrusLogFactoryStdOut returns a factory writing to stdout. Output is human-readable text
// when stdout is a terminal and JSON lines otherwise (e.g. when running under a process supervisor).
func MakeLogrusLogFactoryStdOut(logRegistry *LogRegistry) LogFactory {
	var formatter logrus.Formatter
	if isatty.IsTerminal(os.Stdout.Fd()) {
		formatter = &logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
			DisableQuote:    true, // keeps values unquoted on Windows terminals
		}
	} else {
		formatter = &logrus.JSONFormatter{TimestampFormat: timestampFormat}
	}
	return makeLogrusLogFactory(logRegistry, os.Stdout, formatter, true)
}

// MakeLogrusLogFactoryStdOutPlain creates a log factory that will output very plain-looking log lines,
// with no timestamp and no system field.
func MakeLogrusLogFactoryStdOutPlain(logRegistry *LogRegistry) LogFactory {
	return makeLogrusLogFactory(logRegistry, os.Stdout, &logrus.TextFormatter{DisableTimestamp: true}, false)
}

// MakeLogrusLogFactoryToFile creates a log factory that writes to the specified file, truncating
// anything the file previously contained.
func MakeLogrusLogFactoryToFile(logRegistry *LogRegistry, logFile LogFilePath) (LogFactory, error) {
	file, err := os.OpenFile(string(logFile), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening log file %q", logFile)
	}
	formatter := &logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true}
	return makeLogrusLogFactory(logRegistry, file, formatter, true), nil
}

func makeLogrusLogFactory(logRegistry *LogRegistry, out io.Writer, formatter logrus.Formatter, withSystem bool) LogFactory {
	return func(subsystem string) Log {
		log := logrus.New()
		log.SetOutput(out)
		log.SetFormatter(formatter)
		log.SetLevel(logRegistry.GetLogLevel(subsystem))
		logRegistry.RegisterLogger(subsystem, log)
		fields := logrus.Fields{}
		if withSystem {
			fields["system"] = subsystem
		}
		return &LogrusLogger{Entry: log.WithFields(fields)}
	}
}

// NoOpLog implements the Log interface without actually performing any logging or other actions.
type NoOpLog struct{}

func NewNoOpLog() *NoOpLog {
	return &NoOpLog{}
}

// NoOpLogFactory is a LogFactory function that always returns a NoOpLog, for when logging is not required.
func NoOpLogFactory(subsystem string) Log {
	return NewNoOpLog()
}

func (l *NoOpLog) WithField(name string, value interface{}) Log { return l }
func (l *NoOpLog) WithFields(fields Fields) Log                 { return l }
func (l *NoOpLog) Trace(args ...interface{})                    {}
func (l *NoOpLog) Tracef(msg string, args ...interface{})       {}
func (l *NoOpLog) Debug(args ...interface{})                    {}
func (l *NoOpLog) Debugf(msg string, args ...interface{})       {}
func (l *NoOpLog) Info(args ...interface{})                     {}
func (l *NoOpLog) Infof(msg string, args ...interface{})        {}
func (l *NoOpLog) Warn(args ...interface{})                     {}
func (l *NoOpLog) Warnf(msg string, args ...interface{})        {}
func (l *NoOpLog) Error(args ...interface{})                    {}
func (l *NoOpLog) Errorf(msg string, args ...interface{})       {}
func (l *NoOpLog) Fatal(args ...interface{})                    {}
func (l *NoOpLog) Fatalf(msg string, args ...interface{})       {}
func (l *NoOpLog) Panic(args ...interface{})                    {}
func (l *NoOpLog) Panicf(msg string, args ...interface{})       {}
func (l *NoOpLog) Print(args ...interface{})                    {}
