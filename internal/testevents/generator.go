package testevents

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/casemap/pkg/logger"
)

const randomFloatDivisor = 1000000

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateEvents builds one load event followed by camera moves. Roughly
// DuplicateRatio of the moves reuse the id of an earlier event.
func generateEvents(ctx context.Context, config *Config, stats *Stats) []Event {
	events := make([]Event, 0, config.NumEvents)
	replays := 0
	for i := 0; i < config.NumEvents; i++ {
		if i == 0 {
			events = append(events, Event{EventID: uuid.NewString(), Type: "load"})
			continue
		}
		if getRandomFloat() < config.DuplicateRatio {
			prev := events[int(getRandomFloat()*float64(len(events)))]
			events = append(events, prev)
			replays++
			continue
		}
		events = append(events, randomMove())
	}

	stats.EventsGenerated = len(events)
	stats.ExpectedReplays = replays
	logger.Get().Info(ctx, "generated events",
		logger.Int("count", len(events)),
		logger.Int("replays", replays))
	return events
}

func randomMove() Event {
	return Event{
		EventID: uuid.NewString(),
		Type:    "move",
		Lng:     centerLng + (getRandomFloat()*2-1)*lngSpread,
		Lat:     centerLat + (getRandomFloat()*2-1)*latSpread,
		Zoom:    zoomMin + getRandomFloat()*zoomSpread,
	}
}
