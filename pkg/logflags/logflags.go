// Package logflags configures the loggers used by every layer of bgdb.
package logflags

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	level  = logrus.WarnLevel
	output io.Writer = os.Stderr
)

// Setup set log level and destination, output may be "" or "stderr", "-" or
// "stdout", or a file path (~ is expanded).
func Setup(lvl, out string) error {
	mu.Lock()
	defer mu.Unlock()

	if lvl != "" {
		l, err := logrus.ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("invalid log level: %v", err)
		}
		level = l
	}

	switch out {
	case "", "stderr":
		output = os.Stderr
	case "-", "stdout":
		output = os.Stdout
	case "discard":
		output = ioutil.Discard
	default:
		path, err := homedir.Expand(out)
		if err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log output: %v", err)
		}
		output = f
	}
	return nil
}

// Logger return a logger for layer, configured by the last Setup call.
func Logger(layer string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()

	logger := logrus.New()
	logger.Level = level
	logger.Out = output
	logger.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	return logger.WithFields(logrus.Fields{"layer": layer})
}
