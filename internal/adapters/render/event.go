package render

import (
	"fmt"
	"time"
)

// EventType names a discrete surface event.
type EventType string

// Surface events.
const (
	EventLoad  EventType = "load"
	EventMove  EventType = "move"
	EventClick EventType = "click"
	EventError EventType = "error"
)

// ParseEventType validates an event type.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventLoad, EventMove, EventClick, EventError:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// Event is one discrete event emitted by the surface.
type Event struct {
	ID         string    `json:"event_id"`
	Type       EventType `json:"type"`
	Lng        float64   `json:"lng"`
	Lat        float64   `json:"lat"`
	Zoom       float64   `json:"zoom"`
	Code       int       `json:"code,omitempty"`
	LayerID    string    `json:"layer_id,omitempty"`
	AreaName   string    `json:"area_name,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
