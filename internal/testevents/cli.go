package testevents

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/casemap/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log records to both stdout and a file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "test_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWriter(io.MultiWriter(os.Stdout, file)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the test events tool.
func ShowHelp() {
	os.Stdout.WriteString(`casemap event test tool
=======================

Drives a running map service like a browser would: waits for the map to
load, posts surface events (with replayed ids), clicks painted areas and
checks the popups against the painted feature collection.

Usage:
  go run ./cmd/test-events [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -events int
        Number of surface events to post (default 1000)
  -dup float
        Share of events that replay an earlier event id (default 0.1)
  -clicks int
        Number of painted areas to click (default 25)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -ready duration
        How long to wait for the map to finish loading (default 2m)
  -output string
        Output file for generated events (default: generated_events_TIMESTAMP.json)
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message
`)
}
