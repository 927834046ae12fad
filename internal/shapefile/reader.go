// Package shapefile decodes ESRI shapefile polygon layers into model.Layer values.
package shapefile

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/densitymap/internal/model"
)

// ReadOptions configures layer decoding.
type ReadOptions struct {
	CPGPath string // optional .cpg declaring the DBF code page
	Charset string // overrides the .cpg when set
}

// Read decodes every record of the polygon shapefile at shpPath. Attribute
// order follows the DBF field order; polygon order follows the .shp records.
func Read(shpPath string, opts ReadOptions) (model.Layer, error) {
	if _, err := os.Stat(shpPath); err != nil {
		return model.Layer{}, eris.Wrapf(model.ErrMissingInput, "shapefile: %s: %v", shpPath, err)
	}
	dbfPath := strings.TrimSuffix(shpPath, "shp") + "dbf"
	if _, err := os.Stat(dbfPath); err != nil {
		return model.Layer{}, eris.Wrapf(model.ErrUnrecognizedFormat, "shapefile: attribute table %s: %v", dbfPath, err)
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return model.Layer{}, eris.Wrapf(model.ErrMalformedData, "shapefile: open %s: %v", shpPath, err)
	}
	defer func() { _ = reader.Close() }()

	log := zap.L().With(zap.String("component", "shapefile.reader"))

	if !isPolygonal(reader.GeometryType) {
		return model.Layer{}, eris.Wrapf(model.ErrUnrecognizedFormat,
			"shapefile: geometry type %d is not a polygon layer", reader.GeometryType)
	}

	charset := opts.Charset
	if charset == "" {
		charset = readCPG(opts.CPGPath)
	}
	dec := newAttrDecoder(charset)

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = dec.decode(strings.TrimRight(f.String(), "\x00"))
	}

	layer := model.Layer{Fields: names}
	var empty int

	for reader.Next() {
		idx, shape := reader.Shape()

		mp, err := ToMultiPolygon(shape)
		if err != nil {
			return model.Layer{}, eris.Wrapf(err, "shapefile: record %d", idx)
		}
		if mp.NumPolygons() == 0 {
			empty++
		}

		attrs := make([]model.Attribute, len(fields))
		for i := range fields {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			attrs[i] = model.Attribute{Name: names[i], Value: strings.TrimSpace(dec.decode(val))}
		}

		layer.Polygons = append(layer.Polygons, model.Polygon{
			Index:      idx,
			Geometry:   mp,
			Attributes: attrs,
		})
	}
	if err := reader.Err(); err != nil {
		return model.Layer{}, eris.Wrapf(model.ErrMalformedData, "shapefile: decode %s: %v", shpPath, err)
	}

	if empty > 0 {
		log.Warn("shapefile: records without polygon rings", zap.Int("count", empty))
	}
	log.Debug("shapefile: layer decoded",
		zap.Int("polygons", layer.Len()),
		zap.Strings("fields", layer.Fields),
		zap.String("charset", dec.name),
	)
	return layer, nil
}

func isPolygonal(t shp.ShapeType) bool {
	switch t {
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM, shp.NULL:
		return true
	default:
		return false
	}
}

// ToMultiPolygon converts a decoded shapefile record to a MultiPolygon.
// Null records yield an empty MultiPolygon; non-polygon shapes are rejected.
func ToMultiPolygon(shape shp.Shape) (*geom.MultiPolygon, error) {
	switch s := shape.(type) {
	case nil, *shp.Null:
		return geom.NewMultiPolygon(geom.XY), nil
	case *shp.Polygon:
		return buildMultiPolygon(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return buildMultiPolygon(s.Parts, s.Points), nil
	case *shp.PolygonM:
		return buildMultiPolygon(s.Parts, s.Points), nil
	default:
		return nil, eris.Wrapf(model.ErrUnrecognizedFormat, "shapefile: unsupported shape %T", shape)
	}
}
