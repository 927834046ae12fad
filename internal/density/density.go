// Package density counts points per polygon and derives area and point density.
package density

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/densitymap/internal/model"
)

// Index strategies.
const (
	IndexNone  = "none"
	IndexRTree = "rtree"
)

// Options configures aggregation.
type Options struct {
	AreaDivisor  float64 // layer units² per output area unit; 1e6 turns m² into km²
	DensityScale float64 // density is points per DensityScale output area units
	Index        string  // IndexNone or IndexRTree
}

// DefaultOptions returns km² areas and points per 1000 km².
func DefaultOptions() Options {
	return Options{
		AreaDivisor:  1e6,
		DensityScale: 1000,
		Index:        IndexNone,
	}
}

func (o Options) validate() error {
	if !(o.AreaDivisor > 0) || math.IsInf(o.AreaDivisor, 0) {
		return eris.Errorf("density: area divisor must be positive, got %v", o.AreaDivisor)
	}
	if !(o.DensityScale > 0) || math.IsInf(o.DensityScale, 0) {
		return eris.Errorf("density: density scale must be positive, got %v", o.DensityScale)
	}
	switch o.Index {
	case "", IndexNone, IndexRTree:
		return nil
	default:
		return eris.Errorf("density: unknown index %q", o.Index)
	}
}

// Aggregate returns a copy of layer with PointCount, Area and Density set on
// every polygon. A point is tested against every polygon, so overlapping
// polygons can each count it. Polygons whose area is zero or not finite keep
// their count, get a zero density, and carry an ErrDegenerateGeometry in Err;
// the rest of the layer is still processed.
func Aggregate(layer model.Layer, points model.PointSet, opts Options) (model.Layer, error) {
	if err := opts.validate(); err != nil {
		return model.Layer{}, err
	}
	log := zap.L().With(zap.String("component", "density"))

	out := layer.Clone()
	counts := make([]int, len(out.Polygons))

	switch opts.Index {
	case IndexRTree:
		idx := NewIndex(out)
		for _, pt := range points.Points {
			for _, i := range idx.Candidates(pt) {
				if Contains(out.Polygons[i].Geometry, pt) {
					counts[i]++
				}
			}
		}
	default:
		for i := range out.Polygons {
			g := out.Polygons[i].Geometry
			for _, pt := range points.Points {
				if Contains(g, pt) {
					counts[i]++
				}
			}
		}
	}

	degenerate := 0
	for i := range out.Polygons {
		p := &out.Polygons[i]
		p.PointCount = counts[i]
		p.Err = nil

		area := PolygonArea(p.Geometry) / opts.AreaDivisor
		if area == 0 || math.IsNaN(area) || math.IsInf(area, 0) {
			p.Area = 0
			p.Density = 0
			p.Err = eris.Wrapf(model.ErrDegenerateGeometry, "density: polygon %d has area %v", p.Index, area)
			degenerate++
			continue
		}
		p.Area = area
		p.Density = Round2(float64(p.PointCount) / area * opts.DensityScale)
	}

	log.Debug("aggregated",
		zap.Int("polygons", len(out.Polygons)),
		zap.Int("points", points.Len()),
		zap.Int("degenerate", degenerate),
		zap.String("index", opts.Index),
	)
	return out, nil
}

// Contains reports whether pt lies strictly inside mp: in the interior of
// some member polygon's exterior ring and outside all of that polygon's
// holes. Points on any ring are not contained.
func Contains(mp *geom.MultiPolygon, pt model.Point) bool {
	if mp == nil {
		return false
	}
	c := geom.Coord{pt.Longitude, pt.Latitude}
	for i := 0; i < mp.NumPolygons(); i++ {
		if polygonContains(mp.Polygon(i), c) {
			return true
		}
	}
	return false
}

func polygonContains(poly *geom.Polygon, c geom.Coord) bool {
	n := poly.NumLinearRings()
	if n == 0 {
		return false
	}
	layout := poly.Layout()
	if xy.LocatePointInRing(layout, c, poly.LinearRing(0).FlatCoords()) != location.Interior {
		return false
	}
	for j := 1; j < n; j++ {
		if xy.LocatePointInRing(layout, c, poly.LinearRing(j).FlatCoords()) != location.Exterior {
			return false
		}
	}
	return true
}

// PolygonArea is the planar area of mp in layer units², independent of ring
// winding: exterior rings add, holes subtract.
func PolygonArea(mp *geom.MultiPolygon) float64 {
	if mp == nil {
		return 0
	}
	total := 0.0
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		layout := poly.Layout()
		for j := 0; j < poly.NumLinearRings(); j++ {
			a := math.Abs(xy.SignedArea(layout, poly.LinearRing(j).FlatCoords()))
			if j == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

// Round2 rounds to two decimals, ties to even.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
