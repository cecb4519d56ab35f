package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/casemap/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete event test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting map event test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("events", config.NumEvents),
		logger.Int("clicks", config.Clicks),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Wait for the pipeline to finish loading
	if err := waitForMap(ctx, config); err != nil {
		return fmt.Errorf("map did not load: %w", err)
	}

	// Step 3: Post surface events
	events := generateEvents(ctx, config, stats)
	submitEvents(ctx, config, events, stats)
	if err := verifyDuplicates(stats); err != nil {
		return fmt.Errorf("duplicate detection failed: %w", err)
	}
	served, err := waitForDispatch(ctx, config, stats.EventsSuccessful)
	if err != nil {
		return fmt.Errorf("event dispatch incomplete: %w", err)
	}
	log.Info(ctx, "events dispatched",
		logger.Int64("dispatched", served.Events.Dispatched),
		logger.Int64("failed", served.Events.Failed))

	// Step 4: Click painted areas and check the popups
	areas, err := fetchAreas(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("area retrieval failed: %w", err)
	}
	results := clickAreas(ctx, config, areas, stats)
	if n := verifyClicks(ctx, results, stats); n > 0 {
		return fmt.Errorf("result verification failed: %d popup mismatches", n)
	}

	// Step 5: Save events to file
	if err := saveEventsToFile(ctx, config, events); err != nil {
		log.Warn(ctx, "failed to save events to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	log.Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.BaseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := newHTTPClient(config).client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	// The service answers with the Prometheus exposition.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// waitForMap polls /stats until the pipeline reports loaded.
func waitForMap(ctx context.Context, config *Config) error {
	client := newHTTPClient(config)
	deadline := time.Now().Add(config.ReadyTimeout)
	for {
		var s ServiceStats
		if _, err := client.Get(ctx, config.BaseURL+"/stats", &s); err != nil {
			return err
		}
		if s.Loaded {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("not loaded after %s", config.ReadyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

// saveEventsToFile saves the generated events to a JSON file.
func saveEventsToFile(ctx context.Context, config *Config, events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("no events to save")
	}

	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_events_" + timestamp + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, logFilePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, eventsPerSecond float64

	if stats.EventsSubmitted > 0 {
		successRate = float64(stats.EventsSuccessful+stats.EventsDuplicate) / float64(stats.EventsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsSuccessful", stats.EventsSuccessful),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("areasPainted", stats.AreasPainted),
		logger.Int("clicksResolved", stats.ClicksResolved),
		logger.Int("clickMismatches", stats.ClickMismatches),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
