// Package geo holds the planar geometry used for label and popup anchors.
package geo

import (
	"container/heap"
	"fmt"
	"math"

	geojson "github.com/paulmach/go.geojson"
)

// DefaultPrecision is the polylabel stopping precision in degrees.
const DefaultPrecision = 1e-5

// Point is a [lng, lat] pair.
type Point [2]float64

type cell struct {
	x, y float64
	h    float64 // half the cell size
	d    float64 // signed distance from centre to polygon
	max  float64 // upper bound of d anywhere inside the cell
}

func newCell(x, y, h float64, polygon [][][]float64) *cell {
	d := pointToPolygonDist(x, y, polygon)
	return &cell{x: x, y: y, h: h, d: d, max: d + h*math.Sqrt2}
}

type cellQueue []*cell

func (q cellQueue) Len() int            { return len(q) }
func (q cellQueue) Less(i, j int) bool  { return q[i].max > q[j].max }
func (q cellQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *cellQueue) Push(x interface{}) { *q = append(*q, x.(*cell)) }
func (q *cellQueue) Pop() interface{} {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

// Polylabel returns the pole of inaccessibility of polygon (outer ring
// first, then holes): the interior point farthest from every edge, found to
// within precision.
func Polylabel(polygon [][][]float64, precision float64) (Point, error) {
	if len(polygon) == 0 || len(polygon[0]) == 0 {
		return Point{}, ErrEmptyGeometry
	}
	for _, ring := range polygon {
		for _, p := range ring {
			if len(p) < 2 {
				return Point{}, ErrMalformedPosition
			}
		}
	}
	if precision <= 0 {
		precision = DefaultPrecision
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range polygon[0] {
		minX = math.Min(minX, p[0])
		minY = math.Min(minY, p[1])
		maxX = math.Max(maxX, p[0])
		maxY = math.Max(maxY, p[1])
	}

	width, height := maxX-minX, maxY-minY
	if width == 0 || height == 0 {
		return Point{minX + width/2, minY + height/2}, nil
	}
	// Cells never shrink below precision, so slivers keep a bounded grid.
	cellSize := math.Max(precision, math.Min(width, height))
	h := cellSize / 2

	q := &cellQueue{}
	for x := minX; x < maxX; x += cellSize {
		for y := minY; y < maxY; y += cellSize {
			heap.Push(q, newCell(x+h, y+h, h, polygon))
		}
	}

	best := centroidCell(polygon)
	if bbox := newCell(minX+width/2, minY+height/2, 0, polygon); bbox.d > best.d {
		best = bbox
	}

	for q.Len() > 0 {
		c := heap.Pop(q).(*cell)
		if c.d > best.d {
			best = c
		}
		if c.max-best.d <= precision {
			continue
		}
		h = c.h / 2
		heap.Push(q, newCell(c.x-h, c.y-h, h, polygon))
		heap.Push(q, newCell(c.x+h, c.y-h, h, polygon))
		heap.Push(q, newCell(c.x-h, c.y+h, h, polygon))
		heap.Push(q, newCell(c.x+h, c.y+h, h, polygon))
	}
	return Point{best.x, best.y}, nil
}

// Anchor returns the label anchor for a Polygon, or for the largest member
// of a MultiPolygon.
func Anchor(g *geojson.Geometry, precision float64) (Point, error) {
	if g == nil {
		return Point{}, ErrEmptyGeometry
	}
	switch {
	case g.IsPolygon():
		return Polylabel(g.Polygon, precision)
	case g.IsMultiPolygon():
		return Polylabel(LargestPolygon(g.MultiPolygon), precision)
	}
	return Point{}, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.Type)
}

// LargestPolygon picks the member with the largest outer-ring area.
func LargestPolygon(polygons [][][][]float64) [][][]float64 {
	var best [][][]float64
	bestArea := -1.0
	for _, p := range polygons {
		if len(p) == 0 {
			continue
		}
		if a := math.Abs(RingArea(p[0])); a > bestArea {
			best, bestArea = p, a
		}
	}
	return best
}

// RingArea is the signed shoelace area of a ring.
func RingArea(ring [][]float64) float64 {
	sum := 0.0
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		sum += ring[j][0]*ring[i][1] - ring[i][0]*ring[j][1]
	}
	return sum / 2
}

func centroidCell(polygon [][][]float64) *cell {
	ring := polygon[0]
	area, x, y := 0.0, 0.0, 0.0
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		f := a[0]*b[1] - b[0]*a[1]
		x += (a[0] + b[0]) * f
		y += (a[1] + b[1]) * f
		area += f * 3
	}
	if area == 0 {
		return newCell(ring[0][0], ring[0][1], 0, polygon)
	}
	return newCell(x/area, y/area, 0, polygon)
}

// pointToPolygonDist is positive inside the polygon and negative outside.
func pointToPolygonDist(x, y float64, polygon [][][]float64) float64 {
	inside := false
	minDistSq := math.Inf(1)
	for _, ring := range polygon {
		for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
			a, b := ring[i], ring[j]
			if (a[1] > y) != (b[1] > y) && x < (b[0]-a[0])*(y-a[1])/(b[1]-a[1])+a[0] {
				inside = !inside
			}
			minDistSq = math.Min(minDistSq, segDistSq(x, y, a, b))
		}
	}
	if minDistSq == math.Inf(1) {
		return 0
	}
	d := math.Sqrt(minDistSq)
	if inside {
		return d
	}
	return -d
}

func segDistSq(px, py float64, a, b []float64) float64 {
	x, y := a[0], a[1]
	dx, dy := b[0]-x, b[1]-y
	if dx != 0 || dy != 0 {
		t := ((px-x)*dx + (py-y)*dy) / (dx*dx + dy*dy)
		if t > 1 {
			x, y = b[0], b[1]
		} else if t > 0 {
			x += dx * t
			y += dy * t
		}
	}
	dx, dy = px-x, py-y
	return dx*dx + dy*dy
}
