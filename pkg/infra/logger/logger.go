package logger

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	fileBufferSize    = 32 * 1024
	consoleBufferSize = 1024
)

// NewLogger builds the process logger: JSON lines appended to a
// per-server file through a buffered async writer, mirrored to stdout
// through an async hook so slow terminals never stall request handling.
func NewLogger(serverType string) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})

	logger.SetLevel(logrus.InfoLevel)
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if level, err := logrus.ParseLevel(raw); err == nil {
			logger.SetLevel(level)
		}
	}

	logFile := filepath.Join("logs", serverType+".log")
	if err := os.MkdirAll("logs", 0750); err != nil {
		log.Fatalf("Failed to create logs directory: %v", err)
	}

	fileWriter, err := NewAsyncFileWriter(logFile, fileBufferSize)
	if err != nil {
		log.Fatalf("Failed to initialize async log writer: %v", err)
	}
	logger.SetOutput(fileWriter)

	logger.AddHook(NewAsyncConsoleHook(consoleBufferSize))

	return logger
}
