package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"
)

type ring struct {
	flat []float64
	area float64 // signed: positive when clockwise
}

// buildMultiPolygon assembles shapefile parts into polygons. Clockwise rings
// are exteriors and counter-clockwise rings are holes, attached to the first
// exterior that contains them. Holes with no enclosing exterior, and layers
// that wind every ring the same way, are treated as exteriors. Output rings
// follow the GeoJSON winding (exteriors counter-clockwise).
func buildMultiPolygon(parts []int32, points []shp.Point) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	if len(parts) == 0 || len(points) == 0 {
		return mp
	}

	var shells, holes []ring
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || end > len(points) || start >= end {
			zap.L().Debug("shapefile: skipping malformed ring", zap.Int("part", i))
			continue
		}

		flat := closeRing(points[start:end])
		if len(flat) < 8 {
			zap.L().Debug("shapefile: skipping ring with fewer than 4 vertices", zap.Int("part", i))
			continue
		}

		r := ring{flat: flat, area: xy.SignedArea(geom.XY, flat)}
		if r.area < 0 {
			holes = append(holes, r)
		} else {
			shells = append(shells, r)
		}
	}

	if len(shells) == 0 {
		shells, holes = holes, nil
	}

	assigned := make([][]ring, len(shells))
	for _, h := range holes {
		owner := -1
		p := geom.Coord{h.flat[0], h.flat[1]}
		for i, s := range shells {
			if xy.LocatePointInRing(geom.XY, p, s.flat) != location.Exterior {
				owner = i
				break
			}
		}
		if owner < 0 {
			shells = append(shells, h)
			assigned = append(assigned, nil)
			continue
		}
		assigned[owner] = append(assigned[owner], h)
	}

	for i, s := range shells {
		flat := append([]float64(nil), orient(s, false)...)
		ends := []int{len(flat)}
		for _, h := range assigned[i] {
			flat = append(flat, orient(h, true)...)
			ends = append(ends, len(flat))
		}
		poly := geom.NewPolygonFlat(geom.XY, flat, ends)
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
			continue
		}
	}
	return mp
}

// closeRing flattens pts to x,y pairs, repeating the first vertex at the end
// when the source ring is open.
func closeRing(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2+2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	if len(pts) > 0 {
		first, last := pts[0], pts[len(pts)-1]
		if first.X != last.X || first.Y != last.Y {
			flat = append(flat, first.X, first.Y)
		}
	}
	return flat
}

// orient returns r's coordinates wound clockwise when cw is true and
// counter-clockwise otherwise.
func orient(r ring, cw bool) []float64 {
	isCW := r.area > 0
	if isCW == cw || r.area == 0 {
		return r.flat
	}
	out := make([]float64, len(r.flat))
	n := len(r.flat) / 2
	for i := 0; i < n; i++ {
		out[2*i] = r.flat[2*(n-1-i)]
		out[2*i+1] = r.flat[2*(n-1-i)+1]
	}
	return out
}
