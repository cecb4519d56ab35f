// Package model contains domain models passed between layers.
package model

import (
	"regexp"

	geojson "github.com/paulmach/go.geojson"
)

// MetricActiveCases is the aggregate metric key driving the choropleth.
const MetricActiveCases = "covidActiveCases"

// Well-known field values on case records.
const (
	OutcomeActive   = "ACTIVE"
	OutcomeResolved = "RESOLVED"
	OutcomeFatal    = "FATAL"
	HospitalizedYes = "Yes"
	HospitalizedNo  = "No"
)

// CaseRecord is one reported case joined to an Area by name.
type CaseRecord struct {
	AreaName     string // raw neighbourhood name, matched exactly
	Outcome      string // ACTIVE, RESOLVED, FATAL or any other value verbatim
	Hospitalized string // "Yes", "No" or other; never coerced to bool
}

// IsActive reports whether the outcome is exactly ACTIVE.
func (c CaseRecord) IsActive() bool { return c.Outcome == OutcomeActive }

// IsHospitalized reports whether the flag is exactly "Yes".
func (c CaseRecord) IsHospitalized() bool { return c.Hospitalized == HospitalizedYes }

// Area is a named polygonal region with its aggregate metrics and cases.
// Geometry is immutable once the Area is created and may be shared between
// copies; Metrics and Cases are owned by each copy.
type Area struct {
	ID        int64
	Name      string
	Geometry  *geojson.Geometry
	ShapeArea float64
	Metrics   map[string]int
	Cases     []CaseRecord

	geomDigest uint64
}

// NewArea creates an Area with a zeroed active-case metric and no cases.
func NewArea(id int64, name string, geometry *geojson.Geometry, shapeArea float64) *Area {
	return &Area{
		ID:         id,
		Name:       name,
		Geometry:   geometry,
		ShapeArea:  shapeArea,
		Metrics:    map[string]int{MetricActiveCases: 0},
		Cases:      []CaseRecord{},
		geomDigest: geometryDigest(geometry),
	}
}

// ActiveCases returns the covidActiveCases metric.
func (a *Area) ActiveCases() int { return a.Metrics[MetricActiveCases] }

// Clone deep-copies metrics and cases; the geometry pointer is shared.
func (a *Area) Clone() *Area {
	metrics := make(map[string]int, len(a.Metrics))
	for k, v := range a.Metrics {
		metrics[k] = v
	}
	cases := make([]CaseRecord, len(a.Cases))
	copy(cases, a.Cases)

	c := *a
	c.Metrics = metrics
	c.Cases = cases
	return &c
}

var suffixPattern = regexp.MustCompile(` \(\d+\)`)

// CleanName cuts name at its first " (<digits>)" group, so "Annex (95)"
// becomes "Annex". Names without such a group are returned unchanged.
func CleanName(name string) string {
	loc := suffixPattern.FindStringIndex(name)
	if loc == nil {
		return name
	}
	return name[:loc[0]]
}

// GeometryRecord is one validated neighbourhood record from the geometry stream.
type GeometryRecord struct {
	AreaID    int64
	AreaName  string // raw name, cleaned on ingestion
	Geometry  *geojson.Geometry
	ShapeArea float64
}
