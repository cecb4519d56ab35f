package testevents

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PollInterval         = 500 * time.Millisecond
	DispatchWait         = 10 * time.Second
	PercentageMultiplier = 100
)

// Camera jitter around the initial view, in degrees and zoom levels.
const (
	centerLng  = -79.404
	centerLat  = 43.698
	lngSpread  = 0.25
	latSpread  = 0.15
	zoomMin    = 9.0
	zoomSpread = 4.0
)
