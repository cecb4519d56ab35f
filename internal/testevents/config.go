package testevents

import "time"

// Config holds configuration for the event test
type Config struct {
	BaseURL        string        // Base URL of the service
	NumEvents      int           // Number of surface events to generate
	DuplicateRatio float64       // Share of events that replay an earlier id
	Clicks         int           // Number of areas to click
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	ReadyTimeout   time.Duration // How long to wait for the map to load
	OutputFile     string        // Output file for events
	LogFile        string        // Log file for test output
	Verbose        bool          // Enable verbose logging
}

// Event is the body posted to /map/events.
type Event struct {
	EventID string  `json:"event_id"`
	Type    string  `json:"type"`
	Lng     float64 `json:"lng,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Zoom    float64 `json:"zoom,omitempty"`
	Code    int     `json:"code,omitempty"`
}

// AckResponse represents the response from event submission
type AckResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// Click is the body posted to /map/click.
type Click struct {
	LayerID  string  `json:"layer_id"`
	AreaName string  `json:"area_name"`
	Lng      float64 `json:"lng"`
	Lat      float64 `json:"lat"`
}

// Popup is the answer to a click.
type Popup struct {
	Name         string     `json:"name"`
	Anchor       [2]float64 `json:"anchor"`
	Total        int        `json:"total_cases"`
	Active       int        `json:"active_cases"`
	Hospitalized int        `json:"hospitalized"`
}

// Area is the part of a painted feature the clicks are checked against.
type Area struct {
	Name        string
	ActiveCases int
	TotalCases  int
	Center      [2]float64
}

// ClickResult pairs an area with the popup the service returned.
type ClickResult struct {
	Area  Area
	Popup Popup
}

// ServiceStats is the subset of /stats the run verifies.
type ServiceStats struct {
	Loaded bool `json:"loaded"`
	Events struct {
		Dispatched int64 `json:"dispatched"`
		Failed     int64 `json:"failed"`
	} `json:"events"`
}

// Stats holds test statistics
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsSuccessful int
	EventsDuplicate  int
	EventsFailed     int
	ExpectedReplays  int
	AreasPainted     int
	ClicksResolved   int
	ClickMismatches  int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
