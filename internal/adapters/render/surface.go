package render

import (
	"math"
	"time"

	"github.com/okian/casemap/internal/domain/choropleth"
	geojson "github.com/paulmach/go.geojson"
)

// Fixed camera and style values of the map view.
const (
	DefaultStyle   = "mapbox://styles/mapbox/dark-v10"
	DefaultLng     = -79.404
	DefaultLat     = 43.698
	DefaultZoom    = 10.0
	DefaultPitch   = 40.0
	DefaultBearing = 20.0
)

// Surface is the live map the renderer paints on.
type Surface interface {
	Configure(setup Setup) error
	SetData(fc *geojson.FeatureCollection) error
}

// View is the initial camera.
type View struct {
	Lng       float64 `json:"lng"`
	Lat       float64 `json:"lat"`
	Zoom      float64 `json:"zoom"`
	Pitch     float64 `json:"pitch"`
	Bearing   float64 `json:"bearing"`
	Antialias bool    `json:"antialias"`
}

// DefaultView is the camera the map opens with.
func DefaultView() View {
	return View{
		Lng:       DefaultLng,
		Lat:       DefaultLat,
		Zoom:      DefaultZoom,
		Pitch:     DefaultPitch,
		Bearing:   DefaultBearing,
		Antialias: true,
	}
}

// Control is a map UI control.
type Control struct {
	Type           string `json:"type"`
	Position       string `json:"position"`
	VisualizePitch bool   `json:"visualize_pitch"`
}

// Source is a data source registered on the surface.
type Source struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Setup is everything the surface needs before the first paint.
type Setup struct {
	Style    string             `json:"style"`
	View     View               `json:"view"`
	Controls []Control          `json:"controls"`
	Sources  []Source           `json:"sources"`
	Layers   []choropleth.Layer `json:"layers"`
}

// Camera is the last reported camera position, rounded for display.
type Camera struct {
	Lng       float64   `json:"lng"`
	Lat       float64   `json:"lat"`
	Zoom      float64   `json:"zoom"`
	UpdatedAt time.Time `json:"updated_at"`
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
