// Package points loads point sets from delimited text or synthesizes them inside a layer's extent.
package points

import (
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/sells-group/densitymap/internal/model"
)

// Generation defaults.
const (
	DefaultSampleSize        = 100
	DefaultSeed       uint64 = 42
)

// DefaultBounds is used when a layer has no computable extent.
var DefaultBounds = model.Bounds{MinX: -80, MinY: -5, MaxX: -66, MaxY: 13}

// Generate draws n points uniformly inside bounds from a generator seeded with
// seed. All longitudes are drawn first, then all latitudes, so a given seed
// and bounds always produce the same sequence.
func Generate(bounds model.Bounds, n int, seed uint64) model.PointSet {
	if n < 0 {
		n = 0
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	lons := make([]float64, n)
	for i := range lons {
		lons[i] = uniform(rng, bounds.MinX, bounds.MaxX)
	}
	pts := make([]model.Point, n)
	for i := range pts {
		pts[i] = model.Point{Longitude: lons[i], Latitude: uniform(rng, bounds.MinY, bounds.MaxY)}
	}
	return model.PointSet{Points: pts, Synthetic: true}
}

// GenerateForLayer draws n points inside the layer's extent, falling back to
// fallback when the layer has no usable bounds.
func GenerateForLayer(layer model.Layer, n int, seed uint64, fallback model.Bounds) model.PointSet {
	bounds, ok := layer.Bounds()
	if !ok {
		zap.L().Info("points: layer has no extent, using default bounds",
			zap.Float64s("bounds", []float64{fallback.MinX, fallback.MinY, fallback.MaxX, fallback.MaxY}),
		)
		bounds = fallback
	}
	return Generate(bounds, n, seed)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
