// Package logging sets up logrus from the log configuration.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/Saphs/vulkan-go-context/config"
	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger and returns it. Components that get no logger of their own log
// through it.
func Setup(cfg config.LogConfiguration) (*logrus.Logger, error) {
	return configure(logrus.StandardLogger(), os.Stderr, cfg)
}

// New returns a fresh logger writing to out.
func New(out io.Writer, cfg config.LogConfiguration) (*logrus.Logger, error) {
	return configure(logrus.New(), out, cfg)
}

func configure(l *logrus.Logger, out io.Writer, cfg config.LogConfiguration) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter logrus.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(formatter)
	l.SetReportCaller(cfg.ReportCaller)
	return l, nil
}
