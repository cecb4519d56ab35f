package model

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	geojson "github.com/paulmach/go.geojson"
)

// Dataset is an immutable snapshot of all Areas keyed by name, in ingestion
// order. Accessors return copies so a published Dataset never changes.
type Dataset struct {
	version uint64
	order   []string
	areas   map[string]*Area
	hash    uint64
}

// NewDataset snapshots areas. Each Area is cloned; names must be unique and
// later duplicates are ignored.
func NewDataset(version uint64, areas []*Area) *Dataset {
	d := &Dataset{
		version: version,
		order:   make([]string, 0, len(areas)),
		areas:   make(map[string]*Area, len(areas)),
	}
	for _, a := range areas {
		if _, dup := d.areas[a.Name]; dup {
			continue
		}
		d.order = append(d.order, a.Name)
		d.areas[a.Name] = a.Clone()
	}
	d.hash = d.computeHash()
	return d
}

// Version is the monotonically increasing snapshot number.
func (d *Dataset) Version() uint64 { return d.version }

// Hash is the structural hash; equal content gives equal hashes regardless of version.
func (d *Dataset) Hash() uint64 { return d.hash }

// Len returns the number of areas.
func (d *Dataset) Len() int { return len(d.order) }

// Names returns area names in ingestion order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Area returns a copy of the named area.
func (d *Dataset) Area(name string) (*Area, bool) {
	a, ok := d.areas[name]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Areas returns copies of all areas in ingestion order.
func (d *Dataset) Areas() []*Area {
	out := make([]*Area, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.areas[name].Clone())
	}
	return out
}

// TotalCases sums case list lengths across areas.
func (d *Dataset) TotalCases() int {
	n := 0
	for _, a := range d.areas {
		n += len(a.Cases)
	}
	return n
}

func (d *Dataset) computeHash() uint64 {
	h := xxhash.New()
	buf := make([]byte, 0, 64)
	for _, name := range d.order {
		a := d.areas[name]
		buf = appendString(buf[:0], a.Name)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(a.ID))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(a.ShapeArea))
		buf = binary.LittleEndian.AppendUint64(buf, a.geomDigest)
		_, _ = h.Write(buf)

		keys := make([]string, 0, len(a.Metrics))
		for k := range a.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf = appendString(buf[:0], k)
			buf = binary.LittleEndian.AppendUint64(buf, uint64(a.Metrics[k]))
			_, _ = h.Write(buf)
		}

		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(len(a.Cases)))
		_, _ = h.Write(buf)
		for _, c := range a.Cases {
			buf = appendString(buf[:0], c.AreaName)
			buf = appendString(buf, c.Outcome)
			buf = appendString(buf, c.Hospitalized)
			_, _ = h.Write(buf)
		}
	}
	return h.Sum64()
}

// appendString writes a length-prefixed string so adjacent fields cannot collide.
func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func geometryDigest(g *geojson.Geometry) uint64 {
	if g == nil {
		return 0
	}
	h := xxhash.New()
	_, _ = h.WriteString(string(g.Type))
	var b [8]byte
	writeRing := func(ring [][]float64) {
		for _, pt := range ring {
			for _, v := range pt {
				binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
				_, _ = h.Write(b[:])
			}
		}
		_, _ = h.Write([]byte{0xff})
	}
	switch {
	case g.IsPolygon():
		for _, ring := range g.Polygon {
			writeRing(ring)
		}
	case g.IsMultiPolygon():
		for _, poly := range g.MultiPolygon {
			for _, ring := range poly {
				writeRing(ring)
			}
			_, _ = h.Write([]byte{0xfe})
		}
	}
	return h.Sum64()
}
