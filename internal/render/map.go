// Package render draws a density layer as a standalone Leaflet choropleth.
package render

import (
	"embed"
	"encoding/json"
	"html/template"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/densitymap/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var mapTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html.tmpl"))

// DefaultTooltipLabel prefixes the density in polygon tooltips.
const DefaultTooltipLabel = "Densidad"

// MapOptions controls the rendered map document.
type MapOptions struct {
	Title           string
	CenterLat       float64
	CenterLon       float64
	Zoom            int
	TileURL         string
	TileAttribution string
	TooltipLabel    string
	LeafletURL      string // base URL holding leaflet.js and leaflet.css
	ClusterURL      string // base URL holding the markercluster plugin
}

// DefaultMapOptions centres on Colombia over CartoDB Positron tiles.
func DefaultMapOptions() MapOptions {
	return MapOptions{
		Title:           "Densidad de puntos",
		CenterLat:       5,
		CenterLon:       -74,
		Zoom:            5,
		TileURL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
		TileAttribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors &copy; <a href="https://carto.com/attributions">CARTO</a>`,
		TooltipLabel:    DefaultTooltipLabel,
		LeafletURL:      "https://unpkg.com/leaflet@1.9.4/dist",
		ClusterURL:      "https://unpkg.com/leaflet.markercluster@1.5.3/dist",
	}
}

type mapData struct {
	MapOptions
	Features     template.JS
	Points       template.JS
	StrokeColor  string
	StrokeWeight float64
	FillOpacity  float64
}

// RenderMap writes a complete HTML document showing every polygon of layer
// filled by density and every point as a marker in one cluster group.
func RenderMap(w io.Writer, layer model.Layer, points model.PointSet, opts MapOptions) error {
	features, err := marshalFeatures(FeatureCollection(layer, opts.TooltipLabel))
	if err != nil {
		return err
	}

	coords := make([][2]float64, len(points.Points))
	for i, p := range points.Points {
		coords[i] = [2]float64{p.Longitude, p.Latitude}
	}
	pts, err := json.Marshal(coords)
	if err != nil {
		return eris.Wrap(err, "render: encode points")
	}

	data := mapData{
		MapOptions: opts,
		// json.Marshal escapes <, > and &, so both blobs are safe inside <script>.
		Features:     template.JS(features),
		Points:       template.JS(pts),
		StrokeColor:  "black",
		StrokeWeight: 0.5,
		FillOpacity:  0.7,
	}
	if err := mapTemplate.Execute(w, data); err != nil {
		return eris.Wrap(err, "render: execute map template")
	}
	return nil
}
