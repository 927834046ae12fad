// Package report summarizes an aggregated density layer: descriptive
// statistics, the densest polygons, and an attribute preview.
package report

import (
	"encoding/json"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/densitymap/internal/model"
)

// Defaults for table sizes.
const (
	DefaultTopN        = 5
	DefaultPreviewRows = 5
)

// Value is a statistic that may be undefined. NaN encodes as JSON null.
type Value float64

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// Stats is one column of the describe table.
type Stats struct {
	Column string `json:"column" yaml:"column"`
	Count  int    `json:"count" yaml:"count"`
	Mean   Value  `json:"mean" yaml:"mean"`
	Std    Value  `json:"std" yaml:"std"`
	Min    Value  `json:"min" yaml:"min"`
	Q25    Value  `json:"25%" yaml:"25%"`
	Q50    Value  `json:"50%" yaml:"50%"`
	Q75    Value  `json:"75%" yaml:"75%"`
	Max    Value  `json:"max" yaml:"max"`
}

// Summary holds the describe table for n_points, area_km2 and
// points_per_1000km2, in that order.
type Summary struct {
	Columns []Stats `json:"columns" yaml:"columns"`
}

// Column returns the stats for name.
func (s Summary) Column(name string) (Stats, bool) {
	for _, c := range s.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return Stats{}, false
}

// Describe computes count, mean, sample standard deviation, min, quartiles
// and max for each derived column. Degenerate polygons count toward
// n_points but are left out of the area and density columns.
func Describe(layer model.Layer) Summary {
	var counts, areas, densities []float64
	for _, p := range layer.Polygons {
		counts = append(counts, float64(p.PointCount))
		if p.Degenerate() {
			continue
		}
		areas = append(areas, p.Area)
		densities = append(densities, p.Density)
	}
	return Summary{Columns: []Stats{
		describe(model.ColumnPointCount, counts),
		describe(model.ColumnArea, areas),
		describe(model.ColumnDensity, densities),
	}}
}

func describe(column string, xs []float64) Stats {
	s := Stats{Column: column, Count: len(xs)}
	nan := Value(math.NaN())
	if len(xs) == 0 {
		s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}

	sorted := slices.Clone(xs)
	sort.Float64s(sorted)

	s.Mean = Value(stat.Mean(xs, nil))
	s.Std = nan
	if len(xs) > 1 {
		s.Std = Value(stat.StdDev(xs, nil))
	}
	s.Min = Value(floats.Min(xs))
	s.Max = Value(floats.Max(xs))
	s.Q25 = Value(quantile(sorted, 0.25))
	s.Q50 = Value(quantile(sorted, 0.50))
	s.Q75 = Value(quantile(sorted, 0.75))
	return s
}

// quantile interpolates linearly between the closest ranks of sorted data:
// position (n-1)*p (Hyndman-Fan type 7).
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := float64(n-1) * p
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Top returns up to n polygons ordered by density, highest first. Ties keep
// layer order. Degenerate polygons are skipped.
func Top(layer model.Layer, n int) []model.Polygon {
	if n <= 0 {
		return nil
	}
	ranked := make([]model.Polygon, 0, layer.Len())
	for _, p := range layer.Polygons {
		if !p.Degenerate() {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Density > ranked[j].Density
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Preview returns the first n polygons in layer order.
func Preview(layer model.Layer, n int) []model.Polygon {
	if n <= 0 {
		return nil
	}
	if n > layer.Len() {
		n = layer.Len()
	}
	return slices.Clone(layer.Polygons[:n])
}
