// Package interaction turns map clicks into popup content.
package interaction

import (
	"fmt"
	"html"
	"strings"

	"github.com/okian/casemap/internal/domain/choropleth"
	"github.com/okian/casemap/internal/domain/geo"
	"github.com/okian/casemap/internal/domain/model"
)

// NoName titles a popup opened on bare map background.
const NoName = "No Name"

// Popup is what the map shows for a click.
type Popup struct {
	Name         string    `json:"name"`
	Anchor       geo.Point `json:"anchor"`
	Total        int       `json:"total_cases"`
	Active       int       `json:"active_cases"`
	Hospitalized int       `json:"hospitalized"`
	Density      float64   `json:"density"`
	Color        string    `json:"color"`
	HTML         string    `json:"html"`
}

// Summary counts the cases of one area.
type Summary struct {
	Total        int
	Active       int
	Hospitalized int
}

// Summarize counts cases; flags must match exactly, case included.
func Summarize(cases []model.CaseRecord) Summary {
	s := Summary{Total: len(cases)}
	for _, c := range cases {
		if c.IsActive() {
			s.Active++
		}
		if c.IsHospitalized() {
			s.Hospitalized++
		}
	}
	return s
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithPrecision sets the pole-of-inaccessibility precision in degrees.
func WithPrecision(p float64) Option {
	return func(r *Resolver) {
		if p > 0 {
			r.precision = p
		}
	}
}

// WithRamp sets the ramp used to colour popup swatches.
func WithRamp(ramp *choropleth.Ramp) Option {
	return func(r *Resolver) {
		if ramp != nil {
			r.ramp = ramp
		}
	}
}

// Resolver builds popups for feature and background clicks.
type Resolver struct {
	precision float64
	ramp      *choropleth.Ramp
}

// NewResolver returns a Resolver with geo.DefaultPrecision.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{precision: geo.DefaultPrecision, ramp: choropleth.NewRamp()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FeatureClick anchors the popup at the area's pole of inaccessibility. If
// the geometry cannot be labelled the click coordinate is used instead.
func (r *Resolver) FeatureClick(area *model.Area, click geo.Point) Popup {
	anchor, err := geo.Anchor(area.Geometry, r.precision)
	if err != nil {
		anchor = click
	}
	s := Summarize(area.Cases)
	density := choropleth.Density(area.ActiveCases(), area.ShapeArea)
	p := Popup{
		Name:         area.Name,
		Anchor:       anchor,
		Total:        s.Total,
		Active:       s.Active,
		Hospitalized: s.Hospitalized,
		Density:      density,
		Color:        r.ramp.Color(density),
	}
	p.HTML = RenderHTML(p)
	return p
}

// BackgroundClick anchors at the click itself with zero counts.
func (r *Resolver) BackgroundClick(click geo.Point) Popup {
	p := Popup{
		Name:   NoName,
		Anchor: click,
		Color:  r.ramp.Color(0),
	}
	p.HTML = RenderHTML(p)
	return p
}

// RenderHTML formats the popup body with the name escaped.
func RenderHTML(p Popup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h5>%s</h5>", html.EscapeString(p.Name))
	fmt.Fprintf(&b, "<p>Total Cases: %d</p>", p.Total)
	fmt.Fprintf(&b, "<p>Active Cases: %d</p>", p.Active)
	fmt.Fprintf(&b, "<p>Hospitalized: %d</p>", p.Hospitalized)
	return b.String()
}
