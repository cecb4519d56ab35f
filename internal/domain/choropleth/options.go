package choropleth

// Option applies a configuration option to a Ramp.
type Option func(*Ramp)

// WithStops replaces the colour stops. Stops must be strictly increasing
// by value; an invalid list is ignored.
func WithStops(stops []Stop) Option {
	return func(r *Ramp) {
		if validStops(stops) {
			r.stops = append([]Stop(nil), stops...)
		}
	}
}

// WithOpacity sets the extrusion opacity.
func WithOpacity(opacity float64) Option {
	return func(r *Ramp) {
		if opacity > 0 && opacity <= 1 {
			r.opacity = opacity
		}
	}
}
