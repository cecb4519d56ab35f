package render

import (
	"github.com/okian/casemap/internal/domain/choropleth"
	"github.com/okian/casemap/internal/domain/model"
	geojson "github.com/paulmach/go.geojson"
)

// Case record property keys, as the upstream names them.
const (
	propCases        = "covid"
	propCaseName     = "neighbourhoodName"
	propCaseOutcome  = "outcome"
	propCaseHospital = "currentlyHospitalized"
	propDensity      = "density"
	propColor        = "color"
)

// BuildFeatureCollection renders every area of ds, in order, as a feature
// carrying the properties the layer expressions and popups read.
func BuildFeatureCollection(ds *model.Dataset, ramp *choropleth.Ramp) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if ds == nil {
		return fc
	}
	if ramp == nil {
		ramp = choropleth.NewRamp()
	}
	for _, a := range ds.Areas() {
		f := geojson.NewFeature(a.Geometry)
		f.ID = a.ID
		density := choropleth.Density(a.ActiveCases(), a.ShapeArea)
		f.SetProperty(choropleth.PropID, a.ID)
		f.SetProperty(choropleth.PropName, a.Name)
		f.SetProperty(choropleth.PropShapeArea, a.ShapeArea)
		f.SetProperty(choropleth.PropActiveCases, a.ActiveCases())
		f.SetProperty(choropleth.PropTotalCases, len(a.Cases))
		f.SetProperty(propDensity, density)
		f.SetProperty(propColor, ramp.Color(density))

		records := make([]map[string]string, 0, len(a.Cases))
		for _, c := range a.Cases {
			records = append(records, map[string]string{
				propCaseName:     a.Name,
				propCaseOutcome:  c.Outcome,
				propCaseHospital: c.Hospitalized,
			})
		}
		f.SetProperty(propCases, records)
		fc.AddFeature(f)
	}
	return fc
}
