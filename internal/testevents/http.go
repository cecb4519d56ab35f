package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/okian/casemap/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
}

func newHTTPClient(config *Config) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: config.Timeout}}
}

// Get performs a GET request and decodes a 200 JSON body into out.
func (c *HTTPClient) Get(ctx context.Context, url string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// Post performs a POST request with a JSON body and decodes the answer.
func (c *HTTPClient) Post(ctx context.Context, url string, body, out interface{}) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type submitResult int

const (
	resultSuccess submitResult = iota
	resultDuplicate
	resultFailed
)

// submitEvents posts events concurrently using a worker pool.
func submitEvents(ctx context.Context, config *Config, events []Event, stats *Stats) {
	logger.Get().Info(ctx, "submitting events",
		logger.Int("events", len(events)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config)
	url := config.BaseURL + "/map/events"

	var successful, duplicate, failed, submitted int64
	eventChan := make(chan Event, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range eventChan {
				if ctx.Err() != nil {
					return
				}
				atomic.AddInt64(&submitted, 1)
				switch submitSingleEvent(ctx, client, url, event) {
				case resultSuccess:
					atomic.AddInt64(&successful, 1)
				case resultDuplicate:
					atomic.AddInt64(&duplicate, 1)
				case resultFailed:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	go func() {
		defer close(eventChan)
		for _, event := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- event:
			}
		}
	}()
	wg.Wait()

	stats.EventsSubmitted = int(submitted)
	stats.EventsSuccessful = int(successful)
	stats.EventsDuplicate = int(duplicate)
	stats.EventsFailed = int(failed)

	logger.Get().Info(ctx, "event submission completed",
		logger.Int("successful", stats.EventsSuccessful),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("failed", stats.EventsFailed))
}

func submitSingleEvent(ctx context.Context, client *HTTPClient, url string, event Event) submitResult {
	var ack AckResponse
	status, err := client.Post(ctx, url, event, &ack)
	switch {
	case err != nil:
		return resultFailed
	case status == http.StatusAccepted:
		return resultSuccess
	case status == http.StatusOK && ack.Duplicate:
		return resultDuplicate
	default:
		return resultFailed
	}
}
