package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Initialize sets up structured logging with the specified level
func Initialize(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
		logger.WithError(err).Warn("Invalid log level, defaulting to info")
	}
	logger.SetLevel(level)

	// Set JSON formatter for structured logging
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	// Default to stdout
	logger.SetOutput(os.Stdout)

	return logger
}

// ApplyLevel re-applies the log level from loaded configuration. An explicit
// command-line override wins over the configured value.
func ApplyLevel(logger *logrus.Logger, configLevel string, flagOverride bool) {
	if flagOverride {
		return
	}

	level, err := logrus.ParseLevel(strings.ToLower(configLevel))
	if err != nil {
		logger.WithError(err).Warn("Invalid configured log level, keeping current level")
		return
	}
	logger.SetLevel(level)
}

// SetupFileLogging configures logging to write to a file in addition to stdout
func SetupFileLogging(logger *logrus.Logger, logFile string) error {
	if logFile == "" {
		return nil
	}

	// Create log directory if it doesn't exist
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	// Open log file
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	// Set output to both stdout and file
	multiWriter := io.MultiWriter(os.Stdout, file)
	logger.SetOutput(multiWriter)

	logger.WithField("log_file", logFile).Info("File logging enabled")

	return nil
}

// NewComponentLogger creates a logger with a component field attached
func NewComponentLogger(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// NewSessionLogger creates a logger for a specific camera session
func NewSessionLogger(logger *logrus.Logger, sessionID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "session",
		"sessionId": sessionID,
	})
}

// NewEngineLogger creates a logger for a decode engine
func NewEngineLogger(logger *logrus.Logger, engineName string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "engine",
		"engine":    engineName,
	})
}
