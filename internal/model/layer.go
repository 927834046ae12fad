// Package model defines the polygon layer, point set, and error taxonomy shared by the density pipeline.
package model

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Output column names, kept identical across the summary table, JSON, and XLSX exports.
const (
	ColumnPointCount = "n_points"
	ColumnArea       = "area_km2"
	ColumnDensity    = "points_per_1000km2"
)

// Attribute is one field of a polygon's attribute record, in source column order.
type Attribute struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Polygon is one feature of a Layer. PointCount, Area and Density are only
// meaningful after density aggregation.
type Polygon struct {
	Index      int                `json:"index" yaml:"index"` // position in the source shapefile
	Geometry   *geom.MultiPolygon `json:"-" yaml:"-"`
	Attributes []Attribute        `json:"attributes" yaml:"attributes"`
	PointCount int                `json:"n_points" yaml:"n_points"`
	Area       float64            `json:"area_km2" yaml:"area_km2"`
	Density    float64            `json:"points_per_1000km2" yaml:"points_per_1000km2"`
	Err        error              `json:"-" yaml:"-"` // set when area/density could not be derived
}

// Attribute returns the value of the named field.
func (p Polygon) Attribute(name string) (string, bool) {
	for _, a := range p.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Degenerate reports whether density derivation failed for this polygon.
func (p Polygon) Degenerate() bool {
	return p.Err != nil
}

// Layer is an ordered set of polygons sharing one attribute schema.
type Layer struct {
	Fields   []string  `json:"fields" yaml:"fields"`
	Polygons []Polygon `json:"polygons" yaml:"polygons"`
}

// Len returns the number of polygons.
func (l Layer) Len() int {
	return len(l.Polygons)
}

// Clone copies the polygon slice and attribute records so derived fields can
// be set on the copy without touching l. Geometries are shared; they are
// never mutated after the layer is built.
func (l Layer) Clone() Layer {
	out := Layer{
		Fields:   append([]string(nil), l.Fields...),
		Polygons: make([]Polygon, len(l.Polygons)),
	}
	for i, p := range l.Polygons {
		p.Attributes = append([]Attribute(nil), p.Attributes...)
		out.Polygons[i] = p
	}
	return out
}

// Bounds returns the total bounds of every polygon geometry. ok is false when
// the layer is empty or no geometry has coordinates.
func (l Layer) Bounds() (Bounds, bool) {
	b := geom.NewBounds(geom.XY)
	for _, p := range l.Polygons {
		if p.Geometry == nil || p.Geometry.Empty() {
			continue
		}
		b.Extend(p.Geometry)
	}
	if b.IsEmpty() {
		return Bounds{}, false
	}
	out := Bounds{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}
	if !out.Valid() {
		return Bounds{}, false
	}
	return out, true
}

// Bounds is an axis-aligned bounding box in layer coordinates.
type Bounds struct {
	MinX float64 `json:"minx" yaml:"minx" mapstructure:"minx"`
	MinY float64 `json:"miny" yaml:"miny" mapstructure:"miny"`
	MaxX float64 `json:"maxx" yaml:"maxx" mapstructure:"maxx"`
	MaxY float64 `json:"maxy" yaml:"maxy" mapstructure:"maxy"`
}

// Valid reports whether every edge is finite and min <= max on both axes.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// Geographic reports whether the box fits inside longitude/latitude ranges,
// which usually means the layer is unprojected (degrees, not metres).
func (b Bounds) Geographic() bool {
	return b.MinX >= -180 && b.MaxX <= 180 && b.MinY >= -90 && b.MaxY <= 90
}
