package logger

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	defaultLogLevel = logrus.InfoLevel
	// AllSubsystems can be used in a LogLevelConfig to set the level of every subsystem
	// that doesn't have its own entry, e.g. "*=debug,Store=warning".
	AllSubsystems = "*"
)

var levelMap = map[string]logrus.Level{
	"trace":   logrus.TraceLevel,
	"debug":   logrus.DebugLevel,
	"info":    logrus.InfoLevel,
	"warning": logrus.WarnLevel,
	"error":   logrus.ErrorLevel,
	"fatal":   logrus.FatalLevel,
	"panic":   logrus.PanicLevel,
}

// LogLevelConfig is a comma separated list of subsystem=level pairs.
type LogLevelConfig string

type LogRegistry struct {
	defaultLevel      logrus.Level
	loggerBySubsystem map[string][]*logrus.Logger
	levelBySubsystem  map[string]logrus.Level
	mu                sync.Mutex
}

// ListLogLevels returns a comma separated string listing valid log levels.
func ListLogLevels() string {
	var names []string
	for name := range levelMap {
		names = append(names, fmt.Sprintf("%q", name))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func NewLogRegistry(config LogLevelConfig) (*LogRegistry, error) {
	r := &LogRegistry{
		defaultLevel:      defaultLogLevel,
		loggerBySubsystem: make(map[string][]*logrus.Logger),
		levelBySubsystem:  make(map[string]logrus.Level),
	}
	if config == "" {
		return r, nil
	}
	for _, pair := range strings.Split(string(config), ",") {
		parts := strings.Split(strings.TrimSpace(pair), "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("error invalid log level format: %v", pair)
		}
		level, ok := levelMap[strings.ToLower(parts[1])]
		if !ok {
			return nil, fmt.Errorf("error invalid log level for %q: %v (valid levels are %s)", parts[0], parts[1], ListLogLevels())
		}
		if parts[0] == AllSubsystems {
			r.defaultLevel = level
		} else {
			r.levelBySubsystem[parts[0]] = level
		}
	}
	return r, nil
}

// GetLogLevel returns the configured log level for the specified subsystem.
func (r *LogRegistry) GetLogLevel(subsystem string) logrus.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLogLevel(subsystem)
}

func (r *LogRegistry) getLogLevel(subsystem string) logrus.Level {
	level, ok := r.levelBySubsystem[subsystem]
	if !ok {
		return r.defaultLevel
	}
	return level
}

// RegisterLogger registers a logger with the registry so that later calls to SetDefaultLevel
// or SetLogLevel apply to it.
func (r *LogRegistry) RegisterLogger(subsystem string, logger *logrus.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggerBySubsystem[subsystem] = append(r.loggerBySubsystem[subsystem], logger)
}

// SetLogLevel changes the level of the specified subsystem, including loggers already handed out.
func (r *LogRegistry) SetLogLevel(subsystem string, level logrus.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levelBySubsystem[subsystem] = level
	for _, logger := range r.loggerBySubsystem[subsystem] {
		logger.SetLevel(level)
	}
}

// SetDefaultLevel changes the level of every subsystem without an explicitly configured level.
func (r *LogRegistry) SetDefaultLevel(level logrus.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultLevel = level
	for subsystem, loggers := range r.loggerBySubsystem {
		for _, logger := range loggers {
			logger.SetLevel(r.getLogLevel(subsystem))
		}
	}
}
