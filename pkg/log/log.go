package log

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogFileSizeMB = 10
	maxLogBackups    = 5
)

func InitLogs() *logrus.Logger {
	log := logrus.New()

	log.SetReportCaller(true)

	return log
}

// SetLevel parses level and applies it, falling back to info on error.
func SetLevel(log *logrus.Logger, level string) {
	logLvl, err := logrus.ParseLevel(level)
	if err != nil {
		logLvl = logrus.InfoLevel
	}
	log.SetLevel(logLvl)
}

// WithFile tees log output into a size-rotated file <dir>/<name>.log. The
// returned closer releases the file.
func WithFile(log *logrus.Logger, dir, name string) io.Closer {
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, name+".log"),
		MaxSize:    maxLogFileSizeMB,
		MaxBackups: maxLogBackups,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	return file
}

// ForComponent returns a logger tagged with the component name.
func ForComponent(inner logrus.FieldLogger, component string) logrus.FieldLogger {
	return inner.WithField("component", component)
}
