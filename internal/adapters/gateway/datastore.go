package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/casemap/internal/domain/model"
	geojson "github.com/paulmach/go.geojson"
)

type wireNeighbourhood struct {
	Geometry  *string      `json:"geometry"`
	AreaID    *json.Number `json:"areaId"`
	AreaName  *string      `json:"areaName"`
	ShapeArea *float64     `json:"shapeArea"`
}

type wireCase struct {
	NeighbourhoodName     *string `json:"neighbourhoodName"`
	Outcome               *string `json:"outcome"`
	CurrentlyHospitalized *string `json:"currentlyHospitalized"`
}

// NeighbourhoodPage fetches one page of area geometry. Every record must carry
// a Polygon or MultiPolygon geometry encoded as a JSON string.
func (c *Client) NeighbourhoodPage(ctx context.Context, resourceID string, page int) ([]model.GeometryRecord, error) {
	body, err := c.postQuery(ctx, PathDatastore, NeighbourhoodsQuery(resourceID, page))
	if err != nil {
		return nil, err
	}
	raw, err := decodeResult(PathDatastore, body)
	if err != nil {
		return nil, err
	}
	var wire struct {
		Records *[]wireNeighbourhood `json:"neighbourhoodsRecords"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ParseError{Endpoint: PathDatastore, Field: "result.neighbourhoodsRecords", Err: err}
	}
	if wire.Records == nil {
		return nil, missing(PathDatastore, "result.neighbourhoodsRecords")
	}

	out := make([]model.GeometryRecord, 0, len(*wire.Records))
	for i, w := range *wire.Records {
		rec, err := validateNeighbourhood(fmt.Sprintf("result.neighbourhoodsRecords[%d]", i), w)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func validateNeighbourhood(field string, w wireNeighbourhood) (model.GeometryRecord, error) {
	switch {
	case w.Geometry == nil:
		return model.GeometryRecord{}, missing(PathDatastore, field+".geometry")
	case w.AreaID == nil:
		return model.GeometryRecord{}, missing(PathDatastore, field+".areaId")
	case w.AreaName == nil:
		return model.GeometryRecord{}, missing(PathDatastore, field+".areaName")
	case w.ShapeArea == nil:
		return model.GeometryRecord{}, missing(PathDatastore, field+".shapeArea")
	}
	id, err := w.AreaID.Int64()
	if err != nil {
		return model.GeometryRecord{}, &ParseError{Endpoint: PathDatastore, Field: field + ".areaId", Err: err}
	}
	g, err := geojson.UnmarshalGeometry([]byte(*w.Geometry))
	if err != nil {
		return model.GeometryRecord{}, &ParseError{Endpoint: PathDatastore, Field: field + ".geometry", Err: err}
	}
	if err := checkPolygonal(g); err != nil {
		return model.GeometryRecord{}, &ParseError{Endpoint: PathDatastore, Field: field + ".geometry", Err: err}
	}
	return model.GeometryRecord{
		AreaID:    id,
		AreaName:  *w.AreaName,
		Geometry:  g,
		ShapeArea: *w.ShapeArea,
	}, nil
}

func checkPolygonal(g *geojson.Geometry) error {
	switch {
	case g.IsPolygon():
		return checkPolygon(g.Polygon)
	case g.IsMultiPolygon():
		if len(g.MultiPolygon) == 0 {
			return errors.New("empty multipolygon")
		}
		for _, p := range g.MultiPolygon {
			if err := checkPolygon(p); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unexpected geometry type %q", g.Type)
}

func checkPolygon(rings [][][]float64) error {
	if len(rings) == 0 || len(rings[0]) < 4 {
		return errors.New("polygon needs an outer ring of at least 4 positions")
	}
	for i, ring := range rings {
		for j, pt := range ring {
			if len(pt) < 2 {
				return fmt.Errorf("ring %d position %d has %d coordinates", i, j, len(pt))
			}
		}
	}
	return nil
}

// CasePage fetches one page of case records. A null neighbourhood name is
// kept as empty so the record is counted as a join miss downstream.
func (c *Client) CasePage(ctx context.Context, resourceID string, page int) ([]model.CaseRecord, error) {
	body, err := c.postQuery(ctx, PathDatastore, CasesQuery(resourceID, page))
	if err != nil {
		return nil, err
	}
	raw, err := decodeResult(PathDatastore, body)
	if err != nil {
		return nil, err
	}
	var wire struct {
		Records *[]wireCase `json:"covidRecords"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ParseError{Endpoint: PathDatastore, Field: "result.covidRecords", Err: err}
	}
	if wire.Records == nil {
		return nil, missing(PathDatastore, "result.covidRecords")
	}

	out := make([]model.CaseRecord, 0, len(*wire.Records))
	for i, w := range *wire.Records {
		if w.Outcome == nil {
			return nil, missing(PathDatastore, fmt.Sprintf("result.covidRecords[%d].outcome", i))
		}
		rec := model.CaseRecord{Outcome: *w.Outcome}
		if w.NeighbourhoodName != nil {
			rec.AreaName = *w.NeighbourhoodName
		}
		if w.CurrentlyHospitalized != nil {
			rec.Hospitalized = *w.CurrentlyHospitalized
		}
		out = append(out, rec)
	}
	return out, nil
}
