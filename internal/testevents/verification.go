package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/okian/casemap/pkg/logger"
)

func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}

// verifyClicks checks every popup against the feature it was clicked on.
// It returns the number of mismatches.
func verifyClicks(ctx context.Context, results []ClickResult, stats *Stats) int {
	mismatches := 0
	for _, r := range results {
		if err := checkPopup(r); err != nil {
			mismatches++
			logger.Get().Warn(ctx, "popup mismatch", logger.Error(err))
		}
	}
	stats.ClickMismatches = mismatches
	return mismatches
}

func checkPopup(r ClickResult) error {
	switch {
	case r.Popup.Name != r.Area.Name:
		return fmt.Errorf("clicked %q, popup names %q", r.Area.Name, r.Popup.Name)
	case r.Popup.Total != r.Area.TotalCases:
		return fmt.Errorf("%s: popup total %d, feature total %d", r.Area.Name, r.Popup.Total, r.Area.TotalCases)
	case r.Popup.Active > r.Popup.Total || r.Popup.Hospitalized > r.Popup.Total:
		return fmt.Errorf("%s: popup counts exceed total %d", r.Area.Name, r.Popup.Total)
	}
	return nil
}

// verifyDuplicates checks that the service flagged exactly the replays.
func verifyDuplicates(stats *Stats) error {
	if stats.EventsFailed > 0 {
		return nil // failed posts make the duplicate count unknowable
	}
	if stats.EventsDuplicate != stats.ExpectedReplays {
		return fmt.Errorf("service flagged %d duplicates, %d replays were sent", stats.EventsDuplicate, stats.ExpectedReplays)
	}
	return nil
}

// waitForDispatch polls /stats until every accepted event was handled.
func waitForDispatch(ctx context.Context, config *Config, accepted int) (ServiceStats, error) {
	client := newHTTPClient(config)
	deadline := time.Now().Add(DispatchWait)
	var s ServiceStats
	for {
		if _, err := client.Get(ctx, config.BaseURL+"/stats", &s); err != nil {
			return s, err
		}
		if s.Events.Dispatched+s.Events.Failed >= int64(accepted) {
			return s, nil
		}
		if time.Now().After(deadline) {
			return s, fmt.Errorf("dispatched %d of %d accepted events", s.Events.Dispatched+s.Events.Failed, accepted)
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}
