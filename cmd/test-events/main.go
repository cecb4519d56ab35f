package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/casemap/internal/testevents"
)

// Default configuration constants.
const (
	defaultNumEvents      = 1000
	defaultDuplicateRatio = 0.1
	defaultClicks         = 25
	defaultWorkers        = 2 // multiplier for runtime.NumCPU()
	defaultTimeout        = 30 * time.Second
	defaultReadyTimeout   = 2 * time.Minute
	defaultTestTimeout    = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numEvents  = flag.Int("events", defaultNumEvents, "Number of surface events to post")
		dupRatio   = flag.Float64("dup", defaultDuplicateRatio, "Share of events that replay an earlier event id")
		clicks     = flag.Int("clicks", defaultClicks, "Number of painted areas to click")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		ready      = flag.Duration("ready", defaultReadyTimeout, "How long to wait for the map to load")
		outputFile = flag.String("output", "", "Output file for generated events (default: generated_events_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	if err := testevents.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:        *baseURL,
		NumEvents:      *numEvents,
		DuplicateRatio: *dupRatio,
		Clicks:         *clicks,
		Workers:        max(*workers, 1),
		Timeout:        *timeout,
		ReadyTimeout:   *ready,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Verbose:        *verbose,
	}

	if err := testevents.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
