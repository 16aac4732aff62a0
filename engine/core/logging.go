package core

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

// getLogger is called from the frame loop and from the config watcher
// goroutine, so every read of singleton goes through once.
func getLogger() *logger {
	once.Do(
		func() {
			l := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      time.RFC3339,
				Prefix:          "Runtime 🛰️ ",
				CallerOffset:    1,
			})
			l.SetLevel(log.InfoLevel)
			singleton = &logger{l}
		})
	return singleton
}

// SetLogLevel accepts the charmbracelet level names (debug, info, warn, error, fatal).
func SetLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "log level %q", level), ErrInvalidConfig)
	}
	getLogger().SetLevel(lvl)
	return nil
}

// SetLogOutput redirects every subsequent log line. Tests use io.Discard.
func SetLogOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
