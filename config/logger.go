package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from the log section.
func NewLogger(conf *Config) *logrus.Logger {
	level, err := logrus.ParseLevel(conf.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	var formatter logrus.Formatter = &logrus.TextFormatter{}
	if conf.Log.Format == "json" {
		formatter = &logrus.JSONFormatter{}
	}
	return &logrus.Logger{
		Out:          os.Stdout,
		Formatter:    formatter,
		Hooks:        make(logrus.LevelHooks),
		Level:        level,
		ReportCaller: true,
		ExitFunc:     os.Exit,
	}
}
