package render

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/densitymap/internal/model"
)

// Feature property keys besides the output columns.
const (
	PropIndex      = "index"
	PropFill       = "fill"
	PropTooltip    = "tooltip"
	PropDegenerate = "degenerate"
)

// FeatureCollection encodes every polygon of layer as one GeoJSON feature.
// Properties carry the attribute record, the derived columns, the fill
// colour and the tooltip text.
func FeatureCollection(layer model.Layer, tooltipLabel string) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, layer.Len())}
	for _, p := range layer.Polygons {
		g := p.Geometry
		if g == nil {
			g = geom.NewMultiPolygon(geom.XY)
		}
		props := make(map[string]any, len(p.Attributes)+7)
		for _, a := range p.Attributes {
			props[a.Name] = a.Value
		}
		props[PropIndex] = p.Index
		props[model.ColumnPointCount] = p.PointCount
		props[model.ColumnArea] = p.Area
		props[model.ColumnDensity] = p.Density
		props[PropFill] = FillFor(p).Hex()
		props[PropTooltip] = Tooltip(p, tooltipLabel)
		props[PropDegenerate] = p.Degenerate()

		fc.Features = append(fc.Features, &geojson.Feature{Geometry: g, Properties: props})
	}
	if b, ok := layer.Bounds(); ok {
		fc.BBox = geom.NewBounds(geom.XY).Set(b.MinX, b.MinY, b.MaxX, b.MaxY)
	}
	return fc
}

// FillFor picks the fill for one polygon.
func FillFor(p model.Polygon) Color {
	if p.Degenerate() {
		return DegenerateColor
	}
	return ColorFor(p.Density)
}

// Tooltip is the hover text for one polygon, e.g.
// "Densidad: 3000.0 pts / 1000 km²".
func Tooltip(p model.Polygon, label string) string {
	if label == "" {
		label = DefaultTooltipLabel
	}
	if p.Degenerate() {
		return label + ": sin área (geometría degenerada)"
	}
	return label + ": " + FormatFloat(p.Density) + " pts / 1000 km²"
}

// marshalFeatures renders fc to JSON.
func marshalFeatures(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "render: encode features")
	}
	return data, nil
}
