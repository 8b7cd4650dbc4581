// Package log provides the shared logger for the engine. Level and format
// come from configuration; output optionally rotates through a file.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	level := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if level != "" {
		if level == "DEBUG" {
			logger.SetLevel(logrus.DebugLevel)
		} else if level == "WARN" {
			logger.SetLevel(logrus.WarnLevel)
		} else if level == "INFO" {
			logger.SetLevel(logrus.InfoLevel)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}

// Options configures the shared logger beyond the LOG_LEVEL default.
type Options struct {
	Level string // debug, info, warn, error
	JSON  bool   // JSON formatter instead of text

	// File enables rotating file output when non-empty. Logs then go to
	// both stderr and the file.
	File       string
	MaxSizeMB  int // per file before rotation, default 50
	MaxBackups int // rotated files to keep, default 3
}

// Configure applies options to the shared logger. Called once at startup
// after configuration is loaded.
func Configure(opts Options) {
	if opts.Level != "" {
		if lvl, err := logrus.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			logger.SetLevel(lvl)
		}
	}
	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize == 0 {
			maxSize = 50
		}
		maxBackups := opts.MaxBackups
		if maxBackups == 0 {
			maxBackups = 3
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}
}
