package sshsession

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLoggerOnce sync.Once
	defaultLoggerInst *logrus.Logger
)

// defaultLogger returns the fallback logger used when a config carries none.
// It is built exactly once per process so that repeated sessions without an
// injected logger share a single stderr output instead of stacking handlers.
func defaultLogger() *logrus.Logger {
	defaultLoggerOnce.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.DebugLevel)
		defaultLoggerInst = l
	})
	return defaultLoggerInst
}
