// Package choropleth holds the density paint rule: the ratio of active cases
// to area in square kilometres, mapped onto a linear colour ramp, plus the
// layer definitions the map surface renders it with.
package choropleth

import (
	"fmt"
	"math"
)

// Source and layer identifiers on the surface.
const (
	SourceID         = "toronto-neighbourhoods"
	ExtrusionLayerID = "toronto-neighbourhoods"
	LabelLayerID     = "neighbourhood-labels"
)

// Feature property names read by the layer expressions.
const (
	PropID          = "id"
	PropName        = "name"
	PropShapeArea   = "shapeArea"
	PropActiveCases = "covidActiveCases"
	PropTotalCases  = "totalCases"
)

const (
	squareMetresPerKm2 = 1_000_000
	defaultOpacity     = 0.5
)

// Stop maps a density value to a colour.
type Stop struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// DefaultStops are the density breakpoints; their order encodes the
// normalisation and must not change.
func DefaultStops() []Stop {
	return []Stop{
		{Value: 0, Color: "black"},
		{Value: 1, Color: "yellow"},
		{Value: 20, Color: "orange"},
		{Value: 50, Color: "red"},
	}
}

var namedColors = map[string][3]uint8{
	"black":  {0, 0, 0},
	"yellow": {255, 255, 0},
	"orange": {255, 165, 0},
	"red":    {255, 0, 0},
	"white":  {255, 255, 255},
}

// Ramp evaluates the paint rule.
type Ramp struct {
	stops   []Stop
	opacity float64
}

// NewRamp returns the default black-yellow-orange-red ramp.
func NewRamp(opts ...Option) *Ramp {
	r := &Ramp{stops: DefaultStops(), opacity: defaultOpacity}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stops returns a copy of the colour stops.
func (r *Ramp) Stops() []Stop {
	return append([]Stop(nil), r.stops...)
}

// Opacity returns the extrusion opacity.
func (r *Ramp) Opacity() float64 { return r.opacity }

// Density is activeCases / (shapeArea / 1e6). A non-positive shape area
// yields 0.
func Density(activeCases int, shapeArea float64) float64 {
	if shapeArea <= 0 {
		return 0
	}
	return float64(activeCases) / (shapeArea / squareMetresPerKm2)
}

// Color linearly interpolates density across the stops and returns "#rrggbb".
// Values outside the stop range clamp to the end colours.
func (r *Ramp) Color(density float64) string {
	if math.IsNaN(density) || density <= r.stops[0].Value {
		return hex(rgb(r.stops[0].Color))
	}
	last := r.stops[len(r.stops)-1]
	if density >= last.Value {
		return hex(rgb(last.Color))
	}
	for i := 1; i < len(r.stops); i++ {
		lo, hi := r.stops[i-1], r.stops[i]
		if density > hi.Value {
			continue
		}
		t := (density - lo.Value) / (hi.Value - lo.Value)
		a, b := rgb(lo.Color), rgb(hi.Color)
		var out [3]uint8
		for c := range out {
			out[c] = uint8(math.Round(float64(a[c]) + t*(float64(b[c])-float64(a[c]))))
		}
		return hex(out)
	}
	return hex(rgb(last.Color))
}

// ExtrusionLayer is the fill-extrusion layer definition.
func (r *Ramp) ExtrusionLayer() Layer {
	ramp := []interface{}{
		"interpolate",
		[]interface{}{"linear"},
		[]interface{}{"/",
			[]interface{}{"get", PropActiveCases},
			[]interface{}{"/", []interface{}{"get", PropShapeArea}, squareMetresPerKm2},
		},
	}
	for _, s := range r.stops {
		ramp = append(ramp, s.Value, s.Color)
	}
	return Layer{
		ID:     ExtrusionLayerID,
		Type:   "fill-extrusion",
		Source: SourceID,
		Paint: map[string]interface{}{
			"fill-extrusion-color":   ramp,
			"fill-extrusion-height":  []interface{}{"get", PropActiveCases},
			"fill-extrusion-base":    0,
			"fill-extrusion-opacity": r.opacity,
		},
		Filter: []interface{}{"==", "$type", "Polygon"},
	}
}

// LabelLayer is the symbol layer carrying area names.
func LabelLayer() Layer {
	return Layer{
		ID:     LabelLayerID,
		Type:   "symbol",
		Source: SourceID,
		Layout: map[string]interface{}{
			"text-field":           []interface{}{"get", PropName},
			"text-variable-anchor": []string{"top", "bottom", "left", "right"},
			"text-radial-offset":   0.5,
			"text-justify":         "center",
			"text-size":            []interface{}{"interpolate", []interface{}{"linear"}, []interface{}{"zoom"}, 11, 10, 15, 20},
		},
		Paint: map[string]interface{}{
			"text-color":      "#ffffff",
			"text-halo-width": 1,
			"text-halo-color": "#222222",
			"text-halo-blur":  1,
		},
	}
}

// Layer is a style layer as the browser map library expects it.
type Layer struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Source string                 `json:"source"`
	Paint  map[string]interface{} `json:"paint,omitempty"`
	Layout map[string]interface{} `json:"layout,omitempty"`
	Filter []interface{}          `json:"filter,omitempty"`
}

func validStops(stops []Stop) bool {
	if len(stops) < 2 {
		return false
	}
	for i, s := range stops {
		if _, ok := namedColors[s.Color]; !ok {
			if _, err := parseHex(s.Color); err != nil {
				return false
			}
		}
		if i > 0 && s.Value <= stops[i-1].Value {
			return false
		}
	}
	return true
}

func rgb(color string) [3]uint8 {
	if c, ok := namedColors[color]; ok {
		return c
	}
	c, _ := parseHex(color)
	return c
}

func parseHex(s string) ([3]uint8, error) {
	var c [3]uint8
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid colour %q", s)
	}
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c[0], &c[1], &c[2]); err != nil {
		return c, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return c, nil
}

func hex(c [3]uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
