package btbricks

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every subsystem writes to. The
// default is logrus-backed; SetLogger swaps in anything that
// satisfies the interface.
type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	ChildLogger(tags map[string]interface{}) Logger
}

var logger Logger
var loggerMu sync.Mutex

// SetLogLevelMax raises the default logger to trace output. A caller
// that installed its own Logger manages its own level.
func SetLogLevelMax() {
	l := GetLogger()
	lg, ok := l.(*defaultLogger)
	if !ok {
		l.Warn("custom logger installed, level unchanged")
		return
	}
	lg.Entry.Logger.SetLevel(logrus.TraceLevel)
}

func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger = buildDefaultLogger()
	}

	return logger
}

type defaultLogger struct {
	*logrus.Entry
}

func buildDefaultLogger() Logger {
	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     logrus.InfoLevel,
		Out:       os.Stderr,
		Hooks:     make(logrus.LevelHooks),
	}

	return &defaultLogger{Entry: l.WithFields(map[string]interface{}{})}
}

// ChildLogger derives a logger carrying extra fields, used to tag
// output per subsystem or per connection attempt.
func (d *defaultLogger) ChildLogger(ff map[string]interface{}) Logger {
	return &defaultLogger{d.Entry.WithFields(ff)}
}
